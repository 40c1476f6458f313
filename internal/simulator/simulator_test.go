package simulator

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"MT5Hub/internal/domain/models"
	"MT5Hub/internal/service/auth"
	xhttp "MT5Hub/pkg/http"
	applogger "MT5Hub/pkg/logger"
)

const secret = "s3cret"

type hubStub struct {
	mu        sync.Mutex
	paths     []string
	badReply  bool
	rejectAll bool
}

func (h *hubStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	botID, _ := strconv.Atoi(r.Header.Get("x-bot-id"))
	login, _ := strconv.ParseInt(r.Header.Get("x-mt5-login"), 10, 64)
	ts, _ := strconv.ParseInt(r.Header.Get("x-mt5-time"), 10, 64)

	h.mu.Lock()
	h.paths = append(h.paths, r.URL.Path)
	h.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if h.rejectAll || !auth.MatchesWindow(secret, botID, login, ts, string(body), r.Header.Get("x-mt5-signature")) {
		w.WriteHeader(http.StatusForbidden)
		_ = json.NewEncoder(w).Encode(models.BotAck{OK: false, Error: "bad signature"})
		return
	}
	if strings.HasSuffix(r.URL.Path, "/signal") && !strings.HasPrefix(strings.TrimSpace(string(body)), "[") {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(models.BotAck{OK: false, Error: "expected list of signals"})
		return
	}
	sig := auth.Sign(secret, botID, login, time.Now().Unix(), "")
	if h.badReply {
		sig = "0000"
	}
	_ = json.NewEncoder(w).Encode(models.BotAck{OK: true, Signature: sig})
}

func newSimulator(t *testing.T, stub *hubStub, rounds int) *Simulator {
	t.Helper()
	srv := httptest.NewServer(stub)
	t.Cleanup(srv.Close)
	client := xhttp.NewClient(xhttp.WithBaseURL(srv.URL), xhttp.WithTimeout(5*time.Second))
	return New(client, Config{Secret: secret, BotIDs: []int{1, 2}, Rounds: rounds, Seed: 7}, applogger.NewNop())
}

func TestRoundSendsSignedTraffic(t *testing.T) {
	stub := &hubStub{}
	sim := newSimulator(t, stub, 1)

	if err := sim.Round(context.Background(), 1); err != nil {
		t.Fatalf("round: %v", err)
	}
	st := sim.Stats()
	if st.Sent != 4 || st.OK != 4 || st.Failed != 0 || st.BadReplySig != 0 {
		t.Fatalf("unexpected stats %+v", st)
	}
	want := []string{"/api/v1/bot/heartbeat", "/api/v1/bot/balance", "/api/v1/bot/signal", "/api/v1/bot/signal"}
	stub.mu.Lock()
	defer stub.mu.Unlock()
	if strings.Join(stub.paths, ",") != strings.Join(want, ",") {
		t.Fatalf("paths = %v", stub.paths)
	}
}

func TestRunDrivesEveryBot(t *testing.T) {
	sim := newSimulator(t, &hubStub{}, 2)

	st, err := sim.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if st.Sent != 16 || st.OK != 16 {
		t.Fatalf("unexpected stats %+v", st)
	}
}

func TestBadReplySignatureIsCounted(t *testing.T) {
	sim := newSimulator(t, &hubStub{badReply: true}, 1)

	res, err := sim.Post(context.Background(), "/api/v1/bot/balance", 1, Login(1), []byte(`{"balance":1}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	if res.Status != http.StatusOK || res.SignatureOK {
		t.Fatalf("unexpected result %+v", res)
	}
	if sim.Stats().BadReplySig != 1 {
		t.Fatalf("bad reply signature not counted")
	}
}

func TestRejectedRequestIsCounted(t *testing.T) {
	sim := newSimulator(t, &hubStub{rejectAll: true}, 1)

	res, err := sim.Post(context.Background(), "/api/v1/bot/heartbeat", 1, Login(1), []byte(`{}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	if res.Status != http.StatusForbidden || res.Ack.Error != "bad signature" {
		t.Fatalf("unexpected result %+v", res)
	}
	if st := sim.Stats(); st.Failed != 1 || st.OK != 0 {
		t.Fatalf("unexpected stats %+v", st)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	sim := newSimulator(t, &hubStub{}, 0)
	sim.cfg.Interval = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := sim.Run(ctx)
		done <- err
	}()
	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("run did not stop")
	}
}
