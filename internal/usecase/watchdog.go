package usecase

import (
	"time"

	"MT5Hub/pkg/clock"
	applogger "MT5Hub/pkg/logger"
)

// Watchdog detects bots that stopped sending heartbeats.
type Watchdog struct {
	reg     *Registry
	timeout time.Duration
	clock   clock.Clock
	l       *applogger.Logger
}

func NewWatchdog(reg *Registry, timeout time.Duration, clk clock.Clock, l *applogger.Logger) *Watchdog {
	return &Watchdog{
		reg:     reg,
		timeout: timeout,
		clock:   clk,
		l:       l.With(applogger.String("component", "watchdog")),
	}
}

// Scan marks stale bots disconnected and returns their ids.
func (w *Watchdog) Scan() []int {
	flipped := w.reg.DisconnectStale(w.clock.Now(), w.timeout)
	for _, id := range flipped {
		w.l.Warn("bot disconnected: heartbeat timeout",
			applogger.Int("bot_id", id),
			applogger.Duration("timeout_ms", w.timeout),
		)
	}
	return flipped
}
