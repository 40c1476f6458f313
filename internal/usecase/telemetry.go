package usecase

import (
	"context"
	"errors"

	"MT5Hub/internal/domain/models"
	"MT5Hub/internal/domain/repository"
	"MT5Hub/internal/service/auth"
	applogger "MT5Hub/pkg/logger"
)

// Envelope is the signed part of every bot request.
type Envelope struct {
	BotID     int
	Login     int64
	Timestamp int64
	Signature string
	Body      string
}

// AuthenticatedBot can only be obtained from TelemetryService.Authenticate,
// so registry updates cannot happen without a verified request.
type AuthenticatedBot struct {
	botID int
	login int64
}

func (b AuthenticatedBot) BotID() int   { return b.botID }
func (b AuthenticatedBot) Login() int64 { return b.login }

// TelemetryService applies authenticated bot events to the registry and the batcher.
type TelemetryService struct {
	auth    *auth.Authenticator
	reg     *Registry
	batcher *SignalBatcher
	metrics repository.Metrics
	l       *applogger.Logger
}

func NewTelemetryService(
	a *auth.Authenticator,
	reg *Registry,
	batcher *SignalBatcher,
	metrics repository.Metrics,
	l *applogger.Logger,
) *TelemetryService {
	return &TelemetryService{
		auth:    a,
		reg:     reg,
		batcher: batcher,
		metrics: metrics,
		l:       l.With(applogger.String("component", "telemetry")),
	}
}

// Known reports whether botID is configured. Unknown ids are counted as rejected.
func (s *TelemetryService) Known(kind string, botID int) bool {
	if s.auth.InRoster(botID) {
		return true
	}
	s.metrics.RecordAuthRejection(string(auth.ReasonUnknownBot))
	s.metrics.RecordEvent(kind, "rejected")
	return false
}

// Authenticate verifies env. kind is only used for metrics.
func (s *TelemetryService) Authenticate(kind string, env Envelope) (AuthenticatedBot, error) {
	if err := s.auth.Check(env.BotID, env.Login, env.Timestamp, env.Body, env.Signature); err != nil {
		var rej *auth.Rejection
		if errors.As(err, &rej) {
			s.metrics.RecordAuthRejection(string(rej.Reason))
		}
		s.metrics.RecordEvent(kind, "rejected")
		return AuthenticatedBot{}, err
	}
	return AuthenticatedBot{botID: env.BotID, login: env.Login}, nil
}

// Invalid counts an authenticated request whose body could not be used.
func (s *TelemetryService) Invalid(kind string) {
	s.metrics.RecordEvent(kind, "invalid")
}

// Heartbeat records the heartbeat and returns the bot's trading permission.
func (s *TelemetryService) Heartbeat(ctx context.Context, bot AuthenticatedBot, req models.HeartbeatRequest) bool {
	if s.reg.ApplyHeartbeat(bot.botID, bot.login, req.Broker, req.Leverage) {
		s.l.Debug("heartbeat fingerprint changed", applogger.Int("bot_id", bot.botID))
	}
	s.metrics.RecordEvent("heartbeat", "ok")
	return s.reg.TradeAllowed(ctx, bot.botID)
}

func (s *TelemetryService) Balance(bot AuthenticatedBot, req models.BalanceRequest) {
	if s.reg.ApplyBalance(bot.botID, req.Balance, req.Profit) {
		s.l.Debug("balance fingerprint changed",
			applogger.Int("bot_id", bot.botID),
			applogger.Float64("balance", req.Balance),
			applogger.Float64("profit", req.Profit),
		)
	}
	s.metrics.RecordEvent("balance", "ok")
}

// Signals buffers the signals for the next flush and returns how many were accepted.
func (s *TelemetryService) Signals(bot AuthenticatedBot, reqs []models.SignalRequest) int {
	signals := make([]models.Signal, 0, len(reqs))
	for _, r := range reqs {
		signals = append(signals, r.ToSignal())
	}
	s.batcher.Collect(bot.botID, bot.login, signals...)
	s.metrics.RecordEvent("signal", "ok")
	return len(signals)
}

// Reply signs the acknowledgement sent back to the bot.
func (s *TelemetryService) Reply(bot AuthenticatedBot) string {
	return s.auth.SignReply(bot.botID, bot.login)
}
