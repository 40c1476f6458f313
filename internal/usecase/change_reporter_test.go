package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"MT5Hub/internal/domain/models"
)

func connect(f *fixture, ids ...int) {
	for _, id := range ids {
		f.reg.ApplyHeartbeat(id, int64(9000+id), models.Ptr("Demo"), models.Ptr(100))
	}
}

func TestBalanceTotalsIncludeOffsets(t *testing.T) {
	f := newFixture(fixtureOpts{roster: []int{1, 2}, offsets: Offsets{Balance: 100, Profit: -10}})
	connect(f, 1, 2)
	f.reg.ApplyBalance(1, 50, 1.005)
	f.reg.ApplyBalance(2, 75, 2)

	f.at(5 * time.Second)
	f.reporter.RunCycle(context.Background())

	sent := f.notifier.byKind(models.ReportBalance)
	if len(sent) != 1 {
		t.Fatalf("expected one balance report, got %d", len(sent))
	}
	report := sent[0].payload.(models.BalanceReport)
	if report.TotalBalance != 225.00 {
		t.Fatalf("expected total 225.00, got %v", report.TotalBalance)
	}
	if report.TotalProfit != -6.99 {
		t.Fatalf("expected total profit -6.99, got %v", report.TotalProfit)
	}
}

func TestBalanceReportIsDebounced(t *testing.T) {
	f := newFixture(fixtureOpts{roster: []int{1}, debounce: 5 * time.Second})
	ctx := context.Background()
	f.reg.ApplyBalance(1, 10, 0)

	f.at(2 * time.Second)
	f.reporter.RunCycle(ctx)
	if n := len(f.notifier.byKind(models.ReportBalance)); n != 0 {
		t.Fatalf("report sent before the debounce window, got %d", n)
	}

	f.at(3 * time.Second)
	f.reg.ApplyBalance(1, 11, 0)

	f.at(7 * time.Second)
	f.reporter.RunCycle(ctx)
	if n := len(f.notifier.byKind(models.ReportBalance)); n != 0 {
		t.Fatalf("a newer change should restart the window, got %d", n)
	}

	f.at(8 * time.Second)
	f.reporter.RunCycle(ctx)
	if n := len(f.notifier.byKind(models.ReportBalance)); n != 1 {
		t.Fatalf("expected one report after the window, got %d", n)
	}

	f.at(20 * time.Second)
	f.reg.ApplyBalance(1, 11, 0)
	f.reporter.RunCycle(ctx)
	if n := len(f.notifier.byKind(models.ReportBalance)); n != 1 {
		t.Fatalf("unchanged fingerprint must not be reported again, got %d", n)
	}
}

func TestSnapshotPersistedOnlyWhenAllConnected(t *testing.T) {
	f := newFixture(fixtureOpts{roster: []int{1, 2}})
	ctx := context.Background()

	connect(f, 1)
	f.reg.ApplyBalance(1, 50, 0)
	f.at(5 * time.Second)
	f.reporter.RunCycle(ctx)

	if n := len(f.notifier.byKind(models.ReportBalance)); n != 1 {
		t.Fatalf("balance report should still be sent, got %d", n)
	}
	if f.history.count() != 0 {
		t.Fatalf("snapshot must not be stored while bot 2 is disconnected")
	}

	f.at(6 * time.Second)
	connect(f, 2)
	f.at(7 * time.Second)
	f.reg.ApplyBalance(2, 75, 0)
	f.at(12 * time.Second)
	f.reporter.RunCycle(ctx)

	if f.history.count() != 1 {
		t.Fatalf("expected one snapshot, got %d", f.history.count())
	}
	snap, _ := f.history.Latest(ctx)
	if !snap.Timestamp.Equal(t0.Add(7 * time.Second)) {
		t.Fatalf("snapshot should use max(last_balance_at), got %v", snap.Timestamp)
	}
	if snap.Balance != 125 {
		t.Fatalf("unexpected snapshot balance %v", snap.Balance)
	}
}

func TestSnapshotPersistedWhenFleetReturnsToEarlierBalances(t *testing.T) {
	f := newFixture(fixtureOpts{roster: []int{1, 2}, timeout: 30 * time.Second})
	ctx := context.Background()

	connect(f, 1, 2)
	f.reg.ApplyBalance(1, 50, 0)
	f.reg.ApplyBalance(2, 75, 0)
	f.at(5 * time.Second)
	f.reporter.RunCycle(ctx)

	f.at(31 * time.Second)
	f.reporter.RunCycle(ctx)
	f.at(32 * time.Second)
	f.reg.ApplyBalance(2, 80, 0)
	f.at(40 * time.Second)
	f.reporter.RunCycle(ctx)

	f.at(41 * time.Second)
	connect(f, 1, 2)
	f.reg.ApplyBalance(2, 75, 0)
	f.at(50 * time.Second)
	f.reporter.RunCycle(ctx)

	if n := len(f.notifier.byKind(models.ReportBalance)); n != 3 {
		t.Fatalf("expected three balance reports, got %d", n)
	}
	if f.history.count() != 2 {
		t.Fatalf("expected two snapshots, got %d", f.history.count())
	}
	snap, _ := f.history.Latest(ctx)
	if !snap.Timestamp.Equal(t0.Add(41 * time.Second)) {
		t.Fatalf("latest snapshot should be taken at 41s, got %v", snap.Timestamp)
	}
	if snap.Balance != 125 {
		t.Fatalf("unexpected snapshot balance %v", snap.Balance)
	}
}

func TestDisconnectForcesHeartbeatReport(t *testing.T) {
	f := newFixture(fixtureOpts{roster: []int{1}, timeout: 30 * time.Second, debounce: 60 * time.Second})
	ctx := context.Background()
	connect(f, 1)

	f.at(31 * time.Second)
	f.reporter.RunCycle(ctx)

	sent := f.notifier.byKind(models.ReportHeartbeat)
	if len(sent) != 1 {
		t.Fatalf("expected a forced heartbeat report, got %d", len(sent))
	}
	report := sent[0].payload.(models.HeartbeatReport)
	if !report.Forced || len(report.Flipped) != 1 || report.Flipped[0] != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
	if report.Bots[0].Connected {
		t.Fatalf("report should show the bot disconnected")
	}
}

func TestRosterScenarioHasNoSpuriousDisconnect(t *testing.T) {
	f := newFixture(fixtureOpts{roster: []int{1, 2}, timeout: 30 * time.Second})
	ctx := context.Background()
	connect(f, 1)

	for s := 5; s <= 120; s += 5 {
		f.at(time.Duration(s) * time.Second)
		f.reporter.RunCycle(ctx)
	}

	var forced []models.HeartbeatReport
	for _, s := range f.notifier.byKind(models.ReportHeartbeat) {
		if r := s.payload.(models.HeartbeatReport); r.Forced {
			forced = append(forced, r)
		}
	}
	if len(forced) != 1 {
		t.Fatalf("expected exactly one forced report, got %d", len(forced))
	}
	if len(forced[0].Flipped) != 1 || forced[0].Flipped[0] != 1 {
		t.Fatalf("only bot 1 may flip, got %v", forced[0].Flipped)
	}
}

func TestFailedSendIsMarkedEmittedByDefault(t *testing.T) {
	f := newFixture(fixtureOpts{roster: []int{1}})
	ctx := context.Background()
	f.notifier.failOn[models.ReportBalance] = true
	f.reg.ApplyBalance(1, 10, 0)

	f.at(5 * time.Second)
	f.reporter.RunCycle(ctx)
	f.notifier.failOn[models.ReportBalance] = false

	f.at(10 * time.Second)
	f.reporter.RunCycle(ctx)
	if n := len(f.notifier.byKind(models.ReportBalance)); n != 0 {
		t.Fatalf("failed report should not be retried, got %d", n)
	}
}

func TestFailedSendIsRetriedWhenEnabled(t *testing.T) {
	f := newFixture(fixtureOpts{roster: []int{1}, retryFailed: true})
	ctx := context.Background()
	f.notifier.failOn[models.ReportBalance] = true
	f.reg.ApplyBalance(1, 10, 0)

	f.at(5 * time.Second)
	f.reporter.RunCycle(ctx)
	f.notifier.failOn[models.ReportBalance] = false

	f.at(10 * time.Second)
	f.reporter.RunCycle(ctx)
	if n := len(f.notifier.byKind(models.ReportBalance)); n != 1 {
		t.Fatalf("failed report should be retried, got %d", n)
	}
}

func TestPhaseFailureDoesNotBlockOtherPhases(t *testing.T) {
	f := newFixture(fixtureOpts{roster: []int{1}})
	ctx := context.Background()
	f.history.appendErr = errors.New("clickhouse down")
	f.notifier.failOn[models.ReportBalance] = true

	connect(f, 1)
	f.reg.ApplyBalance(1, 10, 0)
	f.batcher.Collect(1, 9001, sig("EURUSD", nil))

	f.at(5 * time.Second)
	f.reporter.RunCycle(ctx)

	if n := len(f.notifier.byKind(models.ReportHeartbeat)); n != 1 {
		t.Fatalf("heartbeat phase should still run, got %d", n)
	}
	if n := len(f.notifier.byKind(models.ReportSignalBatch)); n != 1 {
		t.Fatalf("signal phase should still run, got %d", n)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	f := newFixture(fixtureOpts{roster: []int{1}})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.reporter.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("cancellation is not an error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("reporter did not stop")
	}
}

func TestSeededRosterIsNotReported(t *testing.T) {
	f := newFixture(fixtureOpts{roster: []int{1, 2}})
	f.at(10 * time.Second)
	f.reporter.RunCycle(context.Background())
	if n := len(f.notifier.sent); n != 0 {
		t.Fatalf("an idle fleet should produce no reports, got %d", n)
	}
}
