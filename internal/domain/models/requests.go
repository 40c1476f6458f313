package models

// Request bodies of the bot and operator endpoints.

type HeartbeatRequest struct {
	Broker   *string `json:"broker" validate:"omitempty,max=128"`
	Leverage *int    `json:"leverage" validate:"omitempty,gte=0"`
}

type BalanceRequest struct {
	Balance float64 `json:"balance"`
	Profit  float64 `json:"profit"`
}

// SignalRequest keeps spread loosely typed: bots may send a number, a string or nothing.
type SignalRequest struct {
	TimestampMs int64       `json:"timestamp" validate:"gte=0"`
	Symbol      string      `json:"symbol" validate:"max=64"`
	Spread      interface{} `json:"spread"`
	Volume      float64     `json:"volume" validate:"gte=0"`
	Direction   int         `json:"direction"`
}

// ToSignal converts the request into a Signal, keeping only numeric spreads.
func (r SignalRequest) ToSignal() Signal {
	s := Signal{
		TimestampMs: r.TimestampMs,
		Symbol:      r.Symbol,
		Volume:      r.Volume,
		Direction:   r.Direction,
	}
	switch v := r.Spread.(type) {
	case float64:
		s.Spread = Ptr(v)
	case int:
		s.Spread = Ptr(float64(v))
	}
	return s
}

type SignalBatchRequest []SignalRequest

type TradePermissionRequest struct {
	BotID   *int  `json:"bot_id"`
	Allowed *bool `json:"allowed" validate:"required"`
}

type HistoryRangeRequest struct {
	From  string `query:"from"`
	To    string `query:"to"`
	Limit int    `query:"limit" default:"1000" validate:"gte=1,lte=100000"`
}

// BotAck is the reply sent to bots. Field names are part of the bot protocol.
type BotAck struct {
	OK        bool   `json:"ok"`
	Allowed   *bool  `json:"allowed,omitempty"`
	Signature string `json:"signature,omitempty"`
	Error     string `json:"error,omitempty"`
}
