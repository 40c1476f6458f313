package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"MT5Hub/internal/domain/models"
	"MT5Hub/internal/service/auth"
	applogger "MT5Hub/pkg/logger"
)

const testSecret = "s3cret"

func newTelemetry(f *fixture, roster []int) *TelemetryService {
	a := auth.New(testSecret, roster, auth.WithClock(f.clk))
	return NewTelemetryService(a, f.reg, f.batcher, nopMetrics{}, applogger.NewNop())
}

func signed(f *fixture, botID int, login int64, body string) Envelope {
	ts := f.clk.Now().Unix()
	return Envelope{
		BotID:     botID,
		Login:     login,
		Timestamp: ts,
		Body:      body,
		Signature: auth.Sign(testSecret, botID, login, ts, body),
	}
}

func TestHeartbeatUpdatesRegistryAndReturnsPermission(t *testing.T) {
	f := newFixture(fixtureOpts{roster: []int{1}})
	svc := newTelemetry(f, []int{1})
	ctx := context.Background()

	bot, err := svc.Authenticate("heartbeat", signed(f, 1, 9001, `{"broker":"Demo"}`))
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if !svc.Heartbeat(ctx, bot, models.HeartbeatRequest{Broker: models.Ptr("Demo"), Leverage: models.Ptr(500)}) {
		t.Fatalf("trading should be allowed by default")
	}

	status, _ := f.reg.Get(1)
	if !status.Connected || *status.Login != 9001 || *status.Broker != "Demo" || *status.Leverage != 500 {
		t.Fatalf("unexpected status %+v", status)
	}

	if _, err := f.reg.SetTradeAllowed(ctx, 1, false); err != nil {
		t.Fatalf("set permission: %v", err)
	}
	if svc.Heartbeat(ctx, bot, models.HeartbeatRequest{}) {
		t.Fatalf("heartbeat should report the updated permission")
	}
}

func TestRejectedRequestDoesNotTouchRegistry(t *testing.T) {
	f := newFixture(fixtureOpts{roster: []int{1}})
	svc := newTelemetry(f, []int{1})

	env := signed(f, 1, 9001, "")
	env.Signature = "deadbeef"
	if _, err := svc.Authenticate("heartbeat", env); !errors.Is(err, models.ErrAccessDenied) {
		t.Fatalf("expected access denied, got %v", err)
	}
	if _, err := svc.Authenticate("heartbeat", signed(f, 7, 9007, "")); !errors.Is(err, models.ErrAccessDenied) {
		t.Fatalf("bot outside the roster must be rejected, got %v", err)
	}

	status, _ := f.reg.Get(1)
	if status.Connected {
		t.Fatalf("registry changed by a rejected request")
	}
	if _, ok := f.reg.Get(7); ok {
		t.Fatalf("unknown bot must not be created")
	}
}

func TestBalanceAndSignalsFlowThrough(t *testing.T) {
	f := newFixture(fixtureOpts{roster: []int{1}})
	svc := newTelemetry(f, []int{1})

	bot, err := svc.Authenticate("balance", signed(f, 1, 9001, "b"))
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	svc.Balance(bot, models.BalanceRequest{Balance: 1000.5, Profit: -3})
	status, _ := f.reg.Get(1)
	if *status.Balance != 1000.5 || *status.Profit != -3 || !status.LastBalanceAt.Equal(t0) {
		t.Fatalf("unexpected balance state %+v", status)
	}

	n := svc.Signals(bot, []models.SignalRequest{
		{TimestampMs: 1, Symbol: "EURUSD", Spread: 1.5},
		{TimestampMs: 2, Symbol: "XAUUSD", Spread: "wide"},
	})
	if n != 2 || f.batcher.Pending(1) != 2 {
		t.Fatalf("expected two buffered signals, got n=%d pending=%d", n, f.batcher.Pending(1))
	}

	f.at(5 * time.Second)
	if _, err := f.batcher.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
	status, _ = f.reg.Get(1)
	if status.MaxSpread == nil || *status.MaxSpread != 1.5 {
		t.Fatalf("non-numeric spread must be ignored, got %v", status.MaxSpread)
	}
}

func TestReplyIsVerifiableByBot(t *testing.T) {
	f := newFixture(fixtureOpts{roster: []int{1}})
	svc := newTelemetry(f, []int{1})
	bot, err := svc.Authenticate("heartbeat", signed(f, 1, 9001, ""))
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	reply := svc.Reply(bot)
	if !auth.MatchesWindow(testSecret, 1, 9001, f.clk.Now().Unix(), "", reply) {
		t.Fatalf("reply signature should verify")
	}
}
