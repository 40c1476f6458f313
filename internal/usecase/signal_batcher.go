package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"MT5Hub/internal/domain/models"
	"MT5Hub/internal/domain/repository"
	"MT5Hub/pkg/clock"
	applogger "MT5Hub/pkg/logger"
)

// BatcherConfig configures SignalBatcher.
type BatcherConfig struct {
	// Delay is the quiet period after the last signal before a bot's buffer is flushed.
	Delay           time.Duration
	MaxBotsPerBatch int
	Channels        []int64
}

type signalBuffer struct {
	signals     []models.Signal
	lastArrival time.Time
}

// SignalBatcher buffers signals per bot and flushes a bot once it has been quiet for Delay.
type SignalBatcher struct {
	mu      sync.Mutex
	buffers map[int]*signalBuffer

	reg      *Registry
	notifier repository.Notifier
	metrics  repository.Metrics
	clock    clock.Clock
	l        *applogger.Logger
	cfg      BatcherConfig
}

func NewSignalBatcher(
	reg *Registry,
	notifier repository.Notifier,
	metrics repository.Metrics,
	clk clock.Clock,
	l *applogger.Logger,
	cfg BatcherConfig,
) *SignalBatcher {
	if cfg.MaxBotsPerBatch <= 0 {
		cfg.MaxBotsPerBatch = 10
	}
	return &SignalBatcher{
		buffers:  make(map[int]*signalBuffer),
		reg:      reg,
		notifier: notifier,
		metrics:  metrics,
		clock:    clk,
		l:        l.With(applogger.String("component", "signal_batcher")),
		cfg:      cfg,
	}
}

// Collect stamps the login on each signal and appends them to the bot's buffer.
func (b *SignalBatcher) Collect(botID int, login int64, signals ...models.Signal) {
	if len(signals) == 0 {
		return
	}
	now := b.clock.Now()

	b.mu.Lock()
	defer b.mu.Unlock()

	buf, ok := b.buffers[botID]
	if !ok {
		buf = &signalBuffer{}
		b.buffers[botID] = buf
	}
	for _, s := range signals {
		s.Login = login
		buf.signals = append(buf.signals, s)
	}
	buf.lastArrival = now
}

// Pending returns the number of buffered signals for botID.
func (b *SignalBatcher) Pending(botID int) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if buf, ok := b.buffers[botID]; ok {
		return len(buf.signals)
	}
	return 0
}

// Flush sends every quiet buffer, at most MaxBotsPerBatch bots per notify call.
// It returns the number of bots flushed.
func (b *SignalBatcher) Flush(ctx context.Context) (int, error) {
	now := b.clock.Now()
	due := b.takeDue(now)
	if len(due) == 0 {
		return 0, nil
	}

	ids := make([]int, 0, len(due))
	prepared := make(map[int][]models.Signal, len(due))
	for id, signals := range due {
		out, err := b.prepare(id, signals)
		if err != nil {
			b.l.Error("signal processing failed, dropping bot batch",
				applogger.Int("bot_id", id), applogger.Error(err))
			continue
		}
		if len(out) == 0 {
			continue
		}
		prepared[id] = out
		ids = append(ids, id)
	}
	sort.Ints(ids)

	var errs []error
	for start := 0; start < len(ids); start += b.cfg.MaxBotsPerBatch {
		end := min(start+b.cfg.MaxBotsPerBatch, len(ids))
		report := models.SignalBatchReport{
			GeneratedAt: now,
			Bots:        make(map[int][]models.Signal, end-start),
		}
		for _, id := range ids[start:end] {
			report.Bots[id] = prepared[id]
		}

		err := b.notifier.Notify(ctx, models.ReportSignalBatch, report, b.cfg.Channels)
		b.metrics.RecordReport(string(models.ReportSignalBatch), err)
		if err != nil {
			b.l.Error("send signal batch failed", applogger.Ints("bot_ids", ids[start:end]), applogger.Error(err))
			errs = append(errs, err)
			continue
		}
		b.l.Debug("signal batch sent", applogger.Ints("bot_ids", ids[start:end]))
	}
	return len(ids), errors.Join(errs...)
}

// takeDue removes and returns the buffers whose last signal is at least Delay old.
func (b *SignalBatcher) takeDue(now time.Time) map[int][]models.Signal {
	b.mu.Lock()
	defer b.mu.Unlock()

	due := make(map[int][]models.Signal)
	for id, buf := range b.buffers {
		if len(buf.signals) == 0 {
			delete(b.buffers, id)
			continue
		}
		if now.Sub(buf.lastArrival) >= b.cfg.Delay {
			due[id] = buf.signals
			delete(b.buffers, id)
		}
	}
	return due
}

// prepare copies the signals and records the bot's max spread.
// A panic here only loses this bot's batch.
func (b *SignalBatcher) prepare(botID int, signals []models.Signal) (out []models.Signal, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()

	out = make([]models.Signal, 0, len(signals))
	maxSpread, haveSpread := math.Inf(-1), false
	for _, s := range signals {
		if s.Spread != nil && !math.IsNaN(*s.Spread) && !math.IsInf(*s.Spread, 0) {
			if *s.Spread > maxSpread {
				maxSpread = *s.Spread
			}
			haveSpread = true
		}
		out = append(out, s)
	}
	if haveSpread {
		b.reg.SetMaxSpread(botID, maxSpread)
	}
	return out, nil
}
