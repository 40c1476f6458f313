package models

// Signal is one trading signal reported by a bot. Spread is nil when the bot
// sent no numeric spread.
type Signal struct {
	TimestampMs int64    `json:"timestamp"`
	Symbol      string   `json:"symbol"`
	Spread      *float64 `json:"spread"`
	Volume      float64  `json:"volume"`
	Direction   int      `json:"direction"`
	Login       int64    `json:"login"`
}
