package usecase

import (
	"context"
	"testing"
	"time"

	"MT5Hub/internal/domain/models"
)

func sig(symbol string, spread *float64) models.Signal {
	return models.Signal{Symbol: symbol, Spread: spread, Volume: 0.1, Direction: 1}
}

func TestTenSignalsBecomeOneBatchInOrder(t *testing.T) {
	f := newFixture(fixtureOpts{roster: []int{1}, debounce: 5 * time.Second})
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		f.at(time.Duration(i) * 400 * time.Millisecond)
		s := sig("EURUSD", nil)
		s.TimestampMs = int64(i)
		f.batcher.Collect(1, 9001, s)

		if n, err := f.batcher.Flush(ctx); n != 0 || err != nil {
			t.Fatalf("flushed too early at signal %d: n=%d err=%v", i, n, err)
		}
	}

	last := 9 * 400 * time.Millisecond
	f.at(last + 5*time.Second)
	n, err := f.batcher.Flush(ctx)
	if err != nil || n != 1 {
		t.Fatalf("expected one bot flushed, n=%d err=%v", n, err)
	}

	sent := f.notifier.byKind(models.ReportSignalBatch)
	if len(sent) != 1 {
		t.Fatalf("expected one batch, got %d", len(sent))
	}
	report := sent[0].payload.(models.SignalBatchReport)
	got := report.Bots[1]
	if len(got) != 10 {
		t.Fatalf("expected 10 signals, got %d", len(got))
	}
	for i, s := range got {
		if s.TimestampMs != int64(i) {
			t.Fatalf("signals out of order: %v", got)
		}
		if s.Login != 9001 {
			t.Fatalf("login not stamped: %+v", s)
		}
	}
	if f.batcher.Pending(1) != 0 {
		t.Fatalf("buffer should be gone after flush")
	}
}

func TestFlushCapsBotsPerCall(t *testing.T) {
	f := newFixture(fixtureOpts{roster: []int{1}})
	for id := 1; id <= 12; id++ {
		f.batcher.Collect(id, int64(9000+id), sig("GBPUSD", nil))
	}
	f.at(5 * time.Second)

	n, err := f.batcher.Flush(context.Background())
	if err != nil || n != 12 {
		t.Fatalf("expected 12 bots flushed, n=%d err=%v", n, err)
	}
	sent := f.notifier.byKind(models.ReportSignalBatch)
	if len(sent) != 2 {
		t.Fatalf("expected 2 notify calls, got %d", len(sent))
	}
	first := sent[0].payload.(models.SignalBatchReport)
	second := sent[1].payload.(models.SignalBatchReport)
	if len(first.Bots) != 10 || len(second.Bots) != 2 {
		t.Fatalf("unexpected chunk sizes %d and %d", len(first.Bots), len(second.Bots))
	}
	if _, ok := second.Bots[12]; !ok {
		t.Fatalf("bots should be chunked in id order")
	}
	if sent[0].channels[0] != 42 {
		t.Fatalf("channels not passed through")
	}
}

func TestFlushWritesMaxSpread(t *testing.T) {
	f := newFixture(fixtureOpts{roster: []int{1}})
	f.batcher.Collect(1, 9001,
		sig("EURUSD", models.Ptr(3.0)),
		sig("EURUSD", nil),
		sig("EURUSD", models.Ptr(7.5)),
	)
	f.at(5 * time.Second)
	if _, err := f.batcher.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
	b, _ := f.reg.Get(1)
	if b.MaxSpread == nil || *b.MaxSpread != 7.5 {
		t.Fatalf("expected max spread 7.5, got %v", b.MaxSpread)
	}
}

func TestSignalsWithoutSymbolAreForwarded(t *testing.T) {
	f := newFixture(fixtureOpts{roster: []int{1, 2}})
	f.batcher.Collect(1, 9001, sig("", models.Ptr(1.0)))
	f.batcher.Collect(2, 9002, sig("EURUSD", models.Ptr(2.0)))
	f.at(5 * time.Second)

	n, err := f.batcher.Flush(context.Background())
	if err != nil || n != 2 {
		t.Fatalf("expected both bots flushed, n=%d err=%v", n, err)
	}
	report := f.notifier.byKind(models.ReportSignalBatch)[0].payload.(models.SignalBatchReport)
	if len(report.Bots[1]) != 1 || report.Bots[1][0].Symbol != "" {
		t.Fatalf("bot 1 signal should be forwarded as received, got %+v", report.Bots[1])
	}
	if len(report.Bots[2]) != 1 {
		t.Fatalf("bot 2 signals missing")
	}
	b, _ := f.reg.Get(1)
	if b.MaxSpread == nil || *b.MaxSpread != 1.0 {
		t.Fatalf("spread of a signal without symbol should still count, got %v", b.MaxSpread)
	}
}

func TestFlushKeepsSendingAfterChunkFailure(t *testing.T) {
	f := newFixture(fixtureOpts{roster: []int{1}})
	for id := 1; id <= 11; id++ {
		f.batcher.Collect(id, int64(id), sig("XAUUSD", nil))
	}
	f.at(5 * time.Second)
	f.notifier.failN = 1

	if _, err := f.batcher.Flush(context.Background()); err == nil {
		t.Fatalf("expected the failed chunk to surface an error")
	}
	sent := f.notifier.byKind(models.ReportSignalBatch)
	if len(sent) != 1 {
		t.Fatalf("second chunk should still be sent, got %d", len(sent))
	}
}

func TestNewSignalRestartsQuietPeriod(t *testing.T) {
	f := newFixture(fixtureOpts{roster: []int{1}})
	f.batcher.Collect(1, 9001, sig("EURUSD", nil))
	f.at(4 * time.Second)
	f.batcher.Collect(1, 9001, sig("EURUSD", nil))
	f.at(6 * time.Second)

	if n, _ := f.batcher.Flush(context.Background()); n != 0 {
		t.Fatalf("second signal should restart the quiet period")
	}
	f.at(9 * time.Second)
	if n, _ := f.batcher.Flush(context.Background()); n != 1 {
		t.Fatalf("expected flush after quiet period")
	}
}
