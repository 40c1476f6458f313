package models

import "time"

// BalanceSnapshot is one persisted fleet-wide balance point.
type BalanceSnapshot struct {
	Timestamp time.Time `json:"timestamp"`
	Balance   float64   `json:"balance"`
	Profit    float64   `json:"profit"`
}

// BalanceCSVRow is the export shape of a BalanceSnapshot.
type BalanceCSVRow struct {
	Timestamp int64   `csv:"timestamp"`
	DateTime  string  `csv:"datetime"`
	Profit    float64 `csv:"profit"`
	Balance   float64 `csv:"balance"`
}
