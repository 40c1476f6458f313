// Package simulator generates signed bot traffic against a running hub.
package simulator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"MT5Hub/internal/domain/models"
	"MT5Hub/internal/service/auth"
	xhttp "MT5Hub/pkg/http"
	applogger "MT5Hub/pkg/logger"
)

const loginBase = 9000

// Config drives a simulation run.
type Config struct {
	Secret string
	BotIDs []int
	// Interval is the pause between rounds of a single bot.
	Interval time.Duration
	// Step is the pause between the requests of one round.
	Step time.Duration
	// Rounds limits the run; 0 runs until the context is cancelled.
	Rounds int
	Seed   int64
}

// Result is the outcome of one request.
type Result struct {
	Path        string
	BotID       int
	Status      int
	Ack         models.BotAck
	SignatureOK bool
}

// Stats counts results over a run.
type Stats struct {
	Sent        int64
	OK          int64
	Failed      int64
	BadReplySig int64
}

// Simulator plays the role of every configured bot.
type Simulator struct {
	client *xhttp.Client
	cfg    Config
	l      *applogger.Logger
	now    func() time.Time

	rndMu sync.Mutex
	rnd   *rand.Rand

	sent, ok, failed, badSig atomic.Int64
}

func New(client *xhttp.Client, cfg Config, l *applogger.Logger) *Simulator {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Simulator{
		client: client,
		cfg:    cfg,
		l:      l.With(applogger.String("component", "simulator")),
		now:    time.Now,
		rnd:    rand.New(rand.NewSource(seed)),
	}
}

// Login is the MT5 account a simulated bot reports.
func Login(botID int) int64 { return int64(loginBase + botID) }

// Run drives every bot concurrently until ctx is done or Rounds are complete.
func (s *Simulator) Run(ctx context.Context) (Stats, error) {
	g, ctx := errgroup.WithContext(ctx)
	for _, id := range s.cfg.BotIDs {
		id := id
		g.Go(func() error { return s.runBot(ctx, id) })
	}
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	return s.Stats(), err
}

func (s *Simulator) Stats() Stats {
	return Stats{
		Sent:        s.sent.Load(),
		OK:          s.ok.Load(),
		Failed:      s.failed.Load(),
		BadReplySig: s.badSig.Load(),
	}
}

func (s *Simulator) runBot(ctx context.Context, botID int) error {
	for round := 0; s.cfg.Rounds == 0 || round < s.cfg.Rounds; round++ {
		if err := s.Round(ctx, botID); err != nil {
			return err
		}
		if err := sleep(ctx, s.cfg.Interval); err != nil {
			return err
		}
	}
	return nil
}

// Round sends one heartbeat, one balance report and two signals for botID.
// Only context cancellation is returned as an error; request failures are counted.
func (s *Simulator) Round(ctx context.Context, botID int) error {
	bodies := []struct {
		path string
		body interface{}
	}{
		{"/api/v1/bot/heartbeat", map[string]interface{}{"broker": "DemoBroker", "leverage": s.intn(50, 200)}},
		{"/api/v1/bot/balance", map[string]interface{}{"balance": math.Round(s.uniform(1, 20)), "profit": round2(s.uniform(-200, 200))}},
		{"/api/v1/bot/signal", []map[string]interface{}{s.signal("EURUSD")}},
		{"/api/v1/bot/signal", []map[string]interface{}{s.signal("GBPUSD")}},
	}

	for i, b := range bodies {
		if i > 0 {
			if err := sleep(ctx, s.cfg.Step); err != nil {
				return err
			}
		}
		raw, err := json.Marshal(b.body)
		if err != nil {
			return fmt.Errorf("encode %s: %w", b.path, err)
		}
		res, err := s.Post(ctx, b.path, botID, Login(botID), raw)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.failed.Add(1)
			s.l.Warn("request failed", applogger.Int("bot_id", botID), applogger.String("path", b.path), applogger.Error(err))
			continue
		}
		s.l.Info("reply",
			applogger.Int("bot_id", botID),
			applogger.String("path", res.Path),
			applogger.Int("status", res.Status),
			applogger.Bool("signature_ok", res.SignatureOK),
			applogger.String("error", res.Ack.Error),
		)
	}
	return nil
}

// Post signs body and sends it as botID/login. A reply signature is checked on 200 responses.
func (s *Simulator) Post(ctx context.Context, path string, botID int, login int64, body []byte) (Result, error) {
	ts := s.now().Unix()
	resp, err := s.client.SendRequest(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodPost,
		URL:    path,
		Headers: map[string]string{
			"Content-Type":    "application/json",
			"x-bot-id":        strconv.Itoa(botID),
			"x-mt5-login":     strconv.FormatInt(login, 10),
			"x-mt5-time":      strconv.FormatInt(ts, 10),
			"x-mt5-signature": auth.Sign(s.cfg.Secret, botID, login, ts, string(body)),
		},
		Body: body,
	})
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()
	s.sent.Add(1)

	res := Result{Path: path, BotID: botID, Status: resp.StatusCode}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return res, fmt.Errorf("read reply: %w", err)
	}
	if err := json.Unmarshal(data, &res.Ack); err != nil {
		return res, fmt.Errorf("decode reply %q: %w", data, err)
	}

	if resp.StatusCode != 200 || !res.Ack.OK {
		s.failed.Add(1)
		return res, nil
	}
	s.ok.Add(1)
	res.SignatureOK = auth.MatchesWindow(s.cfg.Secret, botID, login, s.now().Unix(), "", res.Ack.Signature)
	if !res.SignatureOK {
		s.badSig.Add(1)
	}
	return res, nil
}

func (s *Simulator) signal(symbol string) map[string]interface{} {
	direction := -1
	if s.uniform(0, 1) > 0.5 {
		direction = 1
	}
	return map[string]interface{}{
		"timestamp": s.now().UnixMilli(),
		"symbol":    symbol,
		"spread":    math.Round(s.uniform(1, 20)),
		"volume":    round2(s.uniform(0.01, 1.0)),
		"direction": direction,
	}
}

func (s *Simulator) uniform(lo, hi float64) float64 {
	s.rndMu.Lock()
	defer s.rndMu.Unlock()
	return lo + s.rnd.Float64()*(hi-lo)
}

func (s *Simulator) intn(lo, hi int) int {
	s.rndMu.Lock()
	defer s.rndMu.Unlock()
	return lo + s.rnd.Intn(hi-lo+1)
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
