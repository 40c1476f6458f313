package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"MT5Hub/internal/domain/models"
	"MT5Hub/pkg/clock"
	applogger "MT5Hub/pkg/logger"
)

var t0 = time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)

type memPerms struct {
	mu     sync.Mutex
	values map[int]bool
	sets   int
	getErr error

	// when set, Set signals entered and waits for release before writing
	entered chan struct{}
	release chan struct{}
}

func newMemPerms() *memPerms { return &memPerms{values: make(map[int]bool)} }

func (p *memPerms) Get(_ context.Context, botID int) (bool, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.getErr != nil {
		return false, false, p.getErr
	}
	v, ok := p.values[botID]
	return v, ok, nil
}

func (p *memPerms) Set(_ context.Context, botID int, allowed bool) error {
	if p.release != nil {
		p.entered <- struct{}{}
		<-p.release
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.values[botID] = allowed
	p.sets++
	return nil
}

func (p *memPerms) Clear(_ context.Context, botID int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.values, botID)
	return nil
}

func (p *memPerms) Close() error { return nil }

type memHistory struct {
	mu        sync.Mutex
	snapshots []models.BalanceSnapshot
	appendErr error
}

func (h *memHistory) Append(_ context.Context, s models.BalanceSnapshot) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.appendErr != nil {
		return h.appendErr
	}
	h.snapshots = append(h.snapshots, s)
	return nil
}

func (h *memHistory) Latest(_ context.Context) (*models.BalanceSnapshot, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.snapshots) == 0 {
		return nil, nil
	}
	s := h.snapshots[len(h.snapshots)-1]
	return &s, nil
}

func (h *memHistory) Range(_ context.Context, from, to time.Time, limit int) ([]models.BalanceSnapshot, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []models.BalanceSnapshot
	for _, s := range h.snapshots {
		if !s.Timestamp.Before(from) && !s.Timestamp.After(to) && len(out) < limit {
			out = append(out, s)
		}
	}
	return out, nil
}

func (h *memHistory) Clear(_ context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.snapshots = nil
	return nil
}

func (h *memHistory) Close() error { return nil }

func (h *memHistory) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.snapshots)
}

type sentReport struct {
	kind     models.ReportKind
	payload  interface{}
	channels []int64
}

type recordingNotifier struct {
	mu     sync.Mutex
	sent   []sentReport
	failOn map[models.ReportKind]bool
	failN  int // fail the next failN calls regardless of kind
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{failOn: make(map[models.ReportKind]bool)}
}

var errNotifyDown = errors.New("notifier down")

func (n *recordingNotifier) Notify(_ context.Context, kind models.ReportKind, payload interface{}, channels []int64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failN > 0 {
		n.failN--
		return errNotifyDown
	}
	if n.failOn[kind] {
		return errNotifyDown
	}
	n.sent = append(n.sent, sentReport{kind: kind, payload: payload, channels: channels})
	return nil
}

func (n *recordingNotifier) Close() error { return nil }

func (n *recordingNotifier) byKind(kind models.ReportKind) []sentReport {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []sentReport
	for _, s := range n.sent {
		if s.kind == kind {
			out = append(out, s)
		}
	}
	return out
}

type nopMetrics struct{}

func (nopMetrics) RecordEvent(string, string) {}
func (nopMetrics) RecordAuthRejection(string) {}
func (nopMetrics) RecordReport(string, error) {}
func (nopMetrics) RecordConnectedBots(int) {}
func (nopMetrics) RecordLatency(string, float64) {}

type fixture struct {
	clk      *clock.Fake
	perms    *memPerms
	history  *memHistory
	notifier *recordingNotifier
	reg      *Registry
	batcher  *SignalBatcher
	watchdog *Watchdog
	reporter *ChangeReporter
}

type fixtureOpts struct {
	roster      []int
	timeout     time.Duration
	debounce    time.Duration
	offsets     Offsets
	retryFailed bool
}

func newFixture(o fixtureOpts) *fixture {
	if o.timeout == 0 {
		o.timeout = 30 * time.Second
	}
	if o.debounce == 0 {
		o.debounce = 5 * time.Second
	}
	l := applogger.NewNop()
	f := &fixture{
		clk:      clock.NewFake(t0),
		perms:    newMemPerms(),
		history:  &memHistory{},
		notifier: newRecordingNotifier(),
	}
	f.reg = NewRegistry(f.perms, f.clk, l)
	f.reg.Seed(context.Background(), o.roster)
	f.batcher = NewSignalBatcher(f.reg, f.notifier, nopMetrics{}, f.clk, l, BatcherConfig{
		Delay:           o.debounce,
		MaxBotsPerBatch: 10,
		Channels:        []int64{42},
	})
	f.watchdog = NewWatchdog(f.reg, o.timeout, f.clk, l)
	f.reporter = NewChangeReporter(f.reg, f.watchdog, f.batcher, f.history, f.notifier, nopMetrics{}, f.clk, l, ReporterConfig{
		Interval:       5 * time.Second,
		DebounceWindow: o.debounce,
		Offsets:        o.offsets,
		Channels:       []int64{42},
		RetryFailed:    o.retryFailed,
	})
	return f
}

// at moves the clock to t0+d.
func (f *fixture) at(d time.Duration) {
	f.clk.Set(t0.Add(d))
}
