package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"MT5Hub/internal/domain/models"
	"MT5Hub/internal/domain/repository"
	"MT5Hub/pkg/clock"
	applogger "MT5Hub/pkg/logger"
)

// ReporterConfig configures ChangeReporter.
type ReporterConfig struct {
	Interval time.Duration
	// DebounceWindow is how long a fingerprint must stay unchanged before it is reported.
	DebounceWindow time.Duration
	Offsets        Offsets
	Channels       []int64
	// RetryFailed keeps the last emitted fingerprint when a send fails so the next cycle retries.
	RetryFailed bool
}

// ChangeReporter periodically turns registry changes into balance and heartbeat reports,
// runs the watchdog and flushes quiet signal buffers.
type ChangeReporter struct {
	reg      *Registry
	watchdog *Watchdog
	batcher  *SignalBatcher
	history  repository.BalanceHistory
	notifier repository.Notifier
	metrics  repository.Metrics
	clock    clock.Clock
	l        *applogger.Logger
	cfg      ReporterConfig

	mu              sync.Mutex
	lastBalanceFP   string
	lastHeartbeatFP string
}

func NewChangeReporter(
	reg *Registry,
	watchdog *Watchdog,
	batcher *SignalBatcher,
	history repository.BalanceHistory,
	notifier repository.Notifier,
	metrics repository.Metrics,
	clk clock.Clock,
	l *applogger.Logger,
	cfg ReporterConfig,
) *ChangeReporter {
	r := &ChangeReporter{
		reg:      reg,
		watchdog: watchdog,
		batcher:  batcher,
		history:  history,
		notifier: notifier,
		metrics:  metrics,
		clock:    clk,
		l:        l.With(applogger.String("component", "change_reporter")),
		cfg:      cfg,
	}
	// The seeded roster is the baseline; only later changes are reported.
	r.lastBalanceFP = reg.BalanceFingerprint()
	r.lastHeartbeatFP = reg.HeartbeatFingerprint()
	return r
}

// Run executes a cycle every Interval until ctx is cancelled.
func (r *ChangeReporter) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	r.l.Info("change reporter started", applogger.Duration("interval_ms", r.cfg.Interval))
	for {
		select {
		case <-ctx.Done():
			r.l.Info("change reporter stopped")
			return nil
		case <-ticker.C:
			r.RunCycle(ctx)
		}
	}
}

// RunCycle runs the balance, heartbeat, disconnect and signal phases once.
// A failing phase never prevents the following ones.
func (r *ChangeReporter) RunCycle(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.runPhase(ctx, "balance", r.balancePhase)
	r.runPhase(ctx, "heartbeat", r.heartbeatPhase)
	r.runPhase(ctx, "disconnect", r.disconnectPhase)
	r.runPhase(ctx, "signal", r.signalPhase)

	connected := 0
	for _, b := range r.reg.Snapshot() {
		if b.Connected {
			connected++
		}
	}
	r.metrics.RecordConnectedBots(connected)
}

func (r *ChangeReporter) runPhase(ctx context.Context, name string, phase func(context.Context) error) {
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			r.l.Error("report phase panicked", applogger.String("phase", name), applogger.Any("panic", rec))
		}
		r.metrics.RecordLatency("report_"+name, time.Since(start).Seconds())
	}()

	if err := phase(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			r.l.Debug("report phase cancelled", applogger.String("phase", name))
			return
		}
		r.l.Error("report phase failed", applogger.String("phase", name), applogger.Error(err))
	}
}

func (r *ChangeReporter) due(state FleetState, lastEmitted string, now time.Time) bool {
	return state.Fingerprint != lastEmitted && now.Sub(state.ChangedAt) >= r.cfg.DebounceWindow
}

// settle advances the emitted marker unless retries are enabled and the send failed.
func (r *ChangeReporter) settle(marker *string, fp string, err error) {
	if err == nil || !r.cfg.RetryFailed {
		*marker = fp
	}
}

func (r *ChangeReporter) balancePhase(ctx context.Context) error {
	now := r.clock.Now()
	state := r.reg.BalanceState()
	if !r.due(state, r.lastBalanceFP, now) {
		return nil
	}

	report := BuildBalanceReport(state.Bots, r.cfg.Offsets, now)
	var persistErr error
	if report.AllConnected && !report.LatestAt.IsZero() {
		snap := models.BalanceSnapshot{
			Timestamp: report.LatestAt,
			Balance:   report.TotalBalance,
			Profit:    report.TotalProfit,
		}
		if persistErr = r.history.Append(ctx, snap); persistErr != nil {
			persistErr = fmt.Errorf("append balance snapshot: %w", persistErr)
		}
	}

	err := r.emit(ctx, models.ReportBalance, report)
	r.settle(&r.lastBalanceFP, state.Fingerprint, err)
	return errors.Join(persistErr, err)
}

func (r *ChangeReporter) heartbeatPhase(ctx context.Context) error {
	now := r.clock.Now()
	state := r.reg.HeartbeatState()
	if !r.due(state, r.lastHeartbeatFP, now) {
		return nil
	}
	return r.emitHeartbeat(ctx, now, state, nil)
}

// disconnectPhase runs the watchdog and reports flips right away, ignoring the debounce window.
func (r *ChangeReporter) disconnectPhase(ctx context.Context) error {
	flipped := r.watchdog.Scan()
	if len(flipped) == 0 {
		return nil
	}
	return r.emitHeartbeat(ctx, r.clock.Now(), r.reg.HeartbeatState(), flipped)
}

func (r *ChangeReporter) emitHeartbeat(ctx context.Context, now time.Time, state FleetState, flipped []int) error {
	report := models.HeartbeatReport{
		GeneratedAt: now,
		Forced:      len(flipped) > 0,
		Flipped:     flipped,
		Bots:        state.Bots,
	}
	err := r.emit(ctx, models.ReportHeartbeat, report)
	r.settle(&r.lastHeartbeatFP, state.Fingerprint, err)
	return err
}

func (r *ChangeReporter) signalPhase(ctx context.Context) error {
	_, err := r.batcher.Flush(ctx)
	return err
}

func (r *ChangeReporter) emit(ctx context.Context, kind models.ReportKind, payload interface{}) error {
	err := r.notifier.Notify(ctx, kind, payload, r.cfg.Channels)
	r.metrics.RecordReport(string(kind), err)
	if err != nil {
		return fmt.Errorf("notify %s: %w", kind, err)
	}
	r.l.Debug("report sent", applogger.String("kind", string(kind)))
	return nil
}

// CurrentBalances builds a balance report from the live registry without sending it.
func (r *ChangeReporter) CurrentBalances() models.BalanceReport {
	return BuildBalanceReport(r.reg.Snapshot(), r.cfg.Offsets, r.clock.Now())
}
