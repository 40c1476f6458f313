package models

import "time"

// BotStatus is the registry view of one trading bot.
// Optional fields stay nil until the bot reports them.
type BotStatus struct {
	BotID     int      `json:"bot_id"`
	Connected bool     `json:"connected"`
	Login     *int64   `json:"login"`
	Broker    *string  `json:"broker"`
	Leverage  *int     `json:"leverage"`
	MaxSpread *float64 `json:"max_spread"`
	Balance   *float64 `json:"balance"`
	Profit    *float64 `json:"profit"`
	// TradeAllowed caches the persisted trading permission; nil means not loaded yet.
	TradeAllowed    *bool     `json:"trade_allowed"`
	LastHeartbeatAt time.Time `json:"last_heartbeat_at"`
	LastBalanceAt   time.Time `json:"last_balance_at"`
}

// Clone returns a deep copy so callers never share pointers with the registry.
func (b BotStatus) Clone() BotStatus {
	out := b
	out.Login = clonePtr(b.Login)
	out.Broker = clonePtr(b.Broker)
	out.Leverage = clonePtr(b.Leverage)
	out.MaxSpread = clonePtr(b.MaxSpread)
	out.Balance = clonePtr(b.Balance)
	out.Profit = clonePtr(b.Profit)
	out.TradeAllowed = clonePtr(b.TradeAllowed)
	return out
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T { return &v }

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
