package models

import "time"

// ReportKind names an outbound report type.
type ReportKind string

const (
	ReportHeartbeat   ReportKind = "heartbeat"
	ReportBalance     ReportKind = "balance"
	ReportSignalBatch ReportKind = "signal_batch"
)

// Report is the envelope every notifier backend receives.
type Report struct {
	ID        string      `json:"id"`
	Kind      ReportKind  `json:"kind"`
	Channels  []int64     `json:"channels"`
	CreatedAt time.Time   `json:"created_at"`
	Payload   interface{} `json:"payload"`
}

// HeartbeatReport summarises the connection state of every bot.
type HeartbeatReport struct {
	GeneratedAt time.Time   `json:"generated_at"`
	Forced      bool        `json:"forced"`
	Flipped     []int       `json:"flipped,omitempty"`
	Bots        []BotStatus `json:"bots"`
}

// BotBalance is one row of a balance report.
type BotBalance struct {
	BotID     int      `json:"bot_id"`
	Connected bool     `json:"connected"`
	Login     *int64   `json:"login"`
	Broker    *string  `json:"broker"`
	Balance   *float64 `json:"balance"`
	Profit    *float64 `json:"profit"`
}

// BalanceReport lists per-bot balances plus the offset-adjusted totals.
type BalanceReport struct {
	GeneratedAt  time.Time    `json:"generated_at"`
	Bots         []BotBalance `json:"bots"`
	TotalBalance float64      `json:"total_balance"`
	TotalProfit  float64      `json:"total_profit"`
	// LatestAt is max(last_balance_at) over all bots; zero when nobody reported.
	LatestAt     time.Time `json:"latest_at"`
	AllConnected bool      `json:"all_connected"`
}

// SignalBatchReport carries flushed signals keyed by bot id.
type SignalBatchReport struct {
	GeneratedAt time.Time        `json:"generated_at"`
	Bots        map[int][]Signal `json:"bots"`
}
