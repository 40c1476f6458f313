// Package auth verifies that bot requests are signed with the shared secret
// and are neither replays nor login hijacks.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"MT5Hub/internal/domain/models"
	"MT5Hub/pkg/clock"
	applogger "MT5Hub/pkg/logger"
)

const bucketSeconds = 60

// Reason explains why a request was rejected.
type Reason string

const (
	ReasonStaleTimestamp Reason = "stale_timestamp"
	ReasonUnknownBot     Reason = "unknown_bot"
	ReasonLoginMismatch  Reason = "login_mismatch"
	ReasonBadSignature   Reason = "bad_signature"
)

// Rejection is returned by Check. It matches models.ErrAccessDenied with errors.Is.
type Rejection struct {
	Reason Reason
	BotID  int
	Detail string
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("bot %d rejected: %s (%s)", r.BotID, r.Reason, r.Detail)
}

func (r *Rejection) Unwrap() error { return models.ErrAccessDenied }

type loginSeen struct {
	login  int64
	seenAt int64
}

// Authenticator holds the roster and the last accepted login per bot.
type Authenticator struct {
	secret         string
	roster         map[int]struct{}
	maxDelay       int64
	mismatchWindow int64
	clock          clock.Clock
	l              *applogger.Logger

	mu     sync.Mutex
	logins map[int]loginSeen
}

// Option configures Authenticator.
type Option func(*Authenticator)

// WithMaxDelay sets the allowed distance between the claimed timestamp and now.
func WithMaxDelay(d time.Duration) Option {
	return func(a *Authenticator) { a.maxDelay = int64(d / time.Second) }
}

// WithLoginMismatchWindow sets how long a bot must keep its login before switching.
func WithLoginMismatchWindow(d time.Duration) Option {
	return func(a *Authenticator) { a.mismatchWindow = int64(d / time.Second) }
}

func WithClock(c clock.Clock) Option {
	return func(a *Authenticator) { a.clock = c }
}

func WithLogger(l *applogger.Logger) Option {
	return func(a *Authenticator) { a.l = l }
}

// New creates an Authenticator for the given roster.
func New(secret string, roster []int, opts ...Option) *Authenticator {
	a := &Authenticator{
		secret:         secret,
		roster:         make(map[int]struct{}, len(roster)),
		maxDelay:       60,
		mismatchWindow: 10,
		clock:          clock.Real(),
		l:              applogger.NewNop(),
		logins:         make(map[int]loginSeen),
	}
	for _, id := range roster {
		a.roster[id] = struct{}{}
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Verify reports whether the request is authentic.
func (a *Authenticator) Verify(botID int, login int64, ts int64, body, signature string) bool {
	return a.Check(botID, login, ts, body, signature) == nil
}

// Check runs every rule and returns a *Rejection on the first failure.
// A login that passes the mismatch rule is recorded before the signature is checked.
func (a *Authenticator) Check(botID int, login int64, ts int64, body, signature string) error {
	now := a.clock.Now().Unix()

	if delta := abs(now - ts); delta > a.maxDelay {
		return a.reject(ReasonStaleTimestamp, botID, fmt.Sprintf("delta=%ds", delta))
	}

	if _, ok := a.roster[botID]; !ok {
		return a.reject(ReasonUnknownBot, botID, "not in roster")
	}

	a.mu.Lock()
	last, seen := a.logins[botID]
	if seen && last.login != login && now-last.seenAt < a.mismatchWindow {
		a.mu.Unlock()
		return a.reject(ReasonLoginMismatch, botID,
			fmt.Sprintf("prev=%d now=%d delta=%ds", last.login, login, now-last.seenAt))
	}
	a.logins[botID] = loginSeen{login: login, seenAt: now}
	a.mu.Unlock()

	if !MatchesWindow(a.secret, botID, login, ts, body, signature) {
		return a.reject(ReasonBadSignature, botID, fmt.Sprintf("login=%d ts=%d", login, ts))
	}
	return nil
}

func (a *Authenticator) reject(reason Reason, botID int, detail string) error {
	a.l.Warn("auth rejected",
		applogger.String("reason", string(reason)),
		applogger.Int("bot_id", botID),
		applogger.String("detail", detail),
	)
	return &Rejection{Reason: reason, BotID: botID, Detail: detail}
}

// Generate signs body for the bucket containing ts.
func (a *Authenticator) Generate(botID int, login int64, ts int64, body string) string {
	return Sign(a.secret, botID, login, ts, body)
}

// SignReply signs an empty body at the current time; bots verify it on every response.
func (a *Authenticator) SignReply(botID int, login int64) string {
	return a.Generate(botID, login, a.clock.Now().Unix(), "")
}

// InRoster reports whether botID is configured.
func (a *Authenticator) InRoster(botID int) bool {
	_, ok := a.roster[botID]
	return ok
}

// Sign computes hex(HMAC-SHA256(secret, "{bot}:{login}:{bucket}:{body}")) for ts's minute bucket.
func Sign(secret string, botID int, login int64, ts int64, body string) string {
	return signBucket(secret, botID, login, bucketOf(ts), body)
}

// MatchesWindow checks signature against the bucket of ts and its two neighbours
// using a constant time comparison. It keeps no state.
func MatchesWindow(secret string, botID int, login int64, ts int64, body, signature string) bool {
	bucket := bucketOf(ts)
	for _, d := range [...]int64{-1, 0, 1} {
		expected := signBucket(secret, botID, login, bucket+d, body)
		if hmac.Equal([]byte(expected), []byte(signature)) {
			return true
		}
	}
	return false
}

func signBucket(secret string, botID int, login int64, bucket int64, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d:%d:%d:%s", botID, login, bucket, body)
	return hex.EncodeToString(mac.Sum(nil))
}

// bucketOf is floor(ts / 60).
func bucketOf(ts int64) int64 {
	b := ts / bucketSeconds
	if ts%bucketSeconds != 0 && ts < 0 {
		b--
	}
	return b
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
