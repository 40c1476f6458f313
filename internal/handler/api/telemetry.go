package api

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gocarina/gocsv"
	"github.com/labstack/echo/v4"

	"MT5Hub/internal/domain/models"
	"MT5Hub/internal/service/ratelimit"
	"MT5Hub/internal/usecase"
	xhttp "MT5Hub/pkg/http"
	applogger "MT5Hub/pkg/logger"
	xutil "MT5Hub/pkg/util"
)

const (
	HeaderBotID     = "x-bot-id"
	HeaderLogin     = "x-mt5-login"
	HeaderTimestamp = "x-mt5-time"
	HeaderSignature = "x-mt5-signature"

	maxBodyBytes = 1 << 20
	csvHeader    = "timestamp,datetime,profit,balance\n"
)

// TelemetryHandler serves the signed bot endpoints and the balance export.
type TelemetryHandler struct {
	svc        *usecase.TelemetryService
	ops        *usecase.OperatorService
	limiter    *ratelimit.Limiter
	balanceKey string
	l          *applogger.Logger
}

func NewTelemetryHandler(
	svc *usecase.TelemetryService,
	ops *usecase.OperatorService,
	limiter *ratelimit.Limiter,
	balanceKey string,
	l *applogger.Logger,
) *TelemetryHandler {
	return &TelemetryHandler{
		svc:        svc,
		ops:        ops,
		limiter:    limiter,
		balanceKey: balanceKey,
		l:          l.With(applogger.String("component", "telemetry_api")),
	}
}

func (h *TelemetryHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/v1")
	bot := g.Group("/bot")
	bot.POST("/heartbeat", h.Heartbeat)
	bot.POST("/balance", h.Balance)
	bot.POST("/signal", h.Signal)
	g.GET("/last_balance", h.LastBalance)

	e.GET("/healthz", h.Health)
}

// authenticate reads the signed body, verifies the headers and then applies the rate limit.
// On failure the reply has already been written and ok is false.
func (h *TelemetryHandler) authenticate(c echo.Context, kind string) (bot usecase.AuthenticatedBot, body []byte, ok bool, err error) {
	botID, err := xhttp.HeaderInt(c, HeaderBotID)
	if err != nil {
		return bot, nil, false, h.fail(c, http.StatusBadRequest, err.Error())
	}
	login, err := xhttp.HeaderInt64(c, HeaderLogin)
	if err != nil {
		return bot, nil, false, h.fail(c, http.StatusBadRequest, err.Error())
	}
	ts, err := xhttp.HeaderInt64(c, HeaderTimestamp)
	if err != nil {
		return bot, nil, false, h.fail(c, http.StatusBadRequest, err.Error())
	}
	signature := c.Request().Header.Get(HeaderSignature)
	if signature == "" {
		return bot, nil, false, h.fail(c, http.StatusBadRequest, "missing header "+HeaderSignature)
	}

	if !h.svc.Known(kind, botID) {
		return bot, nil, false, h.fail(c, http.StatusForbidden, "bad signature")
	}

	body, err = io.ReadAll(io.LimitReader(c.Request().Body, maxBodyBytes))
	if err != nil {
		return bot, nil, false, h.fail(c, http.StatusBadRequest, "read body")
	}

	bot, err = h.svc.Authenticate(kind, usecase.Envelope{
		BotID:     botID,
		Login:     login,
		Timestamp: ts,
		Signature: signature,
		Body:      string(body),
	})
	if err != nil {
		if errors.Is(err, models.ErrAccessDenied) {
			return bot, nil, false, h.fail(c, http.StatusForbidden, "bad signature")
		}
		h.l.Error("authenticate failed", applogger.Error(err))
		return bot, nil, false, h.fail(c, http.StatusInternalServerError, "internal error")
	}

	// Buckets are per authenticated bot and source address.
	if h.limiter != nil && !h.limiter.Allow("bot:"+strconv.Itoa(botID)+"@"+c.RealIP()) {
		return bot, nil, false, h.fail(c, http.StatusTooManyRequests, "rate limited")
	}
	return bot, body, true, nil
}

func (h *TelemetryHandler) fail(c echo.Context, status int, msg string) error {
	return c.JSON(status, models.BotAck{OK: false, Error: msg})
}

func (h *TelemetryHandler) invalid(c echo.Context, kind string, errs []xhttp.ValidationError) error {
	h.svc.Invalid(kind)
	h.l.Warn("invalid bot payload", applogger.String("kind", kind), applogger.String("detail", xhttp.Summary(errs)))
	return h.fail(c, http.StatusBadRequest, xhttp.Summary(errs))
}

func (h *TelemetryHandler) Heartbeat(c echo.Context) error {
	bot, body, ok, err := h.authenticate(c, "heartbeat")
	if !ok {
		return err
	}
	req := &models.HeartbeatRequest{}
	if errs := xhttp.DecodeAndValidate(c.Request().Context(), body, req); errs != nil {
		return h.invalid(c, "heartbeat", errs)
	}

	allowed := h.svc.Heartbeat(c.Request().Context(), bot, *req)
	return c.JSON(http.StatusOK, models.BotAck{OK: true, Allowed: &allowed, Signature: h.svc.Reply(bot)})
}

func (h *TelemetryHandler) Balance(c echo.Context) error {
	bot, body, ok, err := h.authenticate(c, "balance")
	if !ok {
		return err
	}
	req := &models.BalanceRequest{}
	if errs := xhttp.DecodeAndValidate(c.Request().Context(), body, req); errs != nil {
		return h.invalid(c, "balance", errs)
	}

	h.svc.Balance(bot, *req)
	return c.JSON(http.StatusOK, models.BotAck{OK: true, Signature: h.svc.Reply(bot)})
}

func (h *TelemetryHandler) Signal(c echo.Context) error {
	bot, body, ok, err := h.authenticate(c, "signal")
	if !ok {
		return err
	}
	var req models.SignalBatchRequest
	if errs := xhttp.DecodeAndValidate(c.Request().Context(), body, &req); errs != nil {
		return h.invalid(c, "signal", errs)
	}
	if req == nil {
		h.svc.Invalid("signal")
		return h.fail(c, http.StatusBadRequest, "expected list of signals")
	}

	h.svc.Signals(bot, req)
	return c.JSON(http.StatusOK, models.BotAck{OK: true, Signature: h.svc.Reply(bot)})
}

// LastBalance exports the newest persisted snapshot as CSV.
func (h *TelemetryHandler) LastBalance(c echo.Context) error {
	if h.balanceKey == "" || c.QueryParam("key") != h.balanceKey {
		return c.String(http.StatusForbidden, "unauthorized")
	}

	snap, err := h.ops.LatestSnapshot(c.Request().Context())
	if err != nil {
		h.l.Error("load latest snapshot", applogger.Error(err))
		return c.String(http.StatusInternalServerError, "error")
	}
	if snap == nil {
		return c.Blob(http.StatusOK, "text/csv", []byte(csvHeader))
	}

	ts := snap.Timestamp.Unix()
	rows := []models.BalanceCSVRow{{
		Timestamp: ts,
		DateTime:  xutil.FormatUnixUTC(ts),
		Profit:    snap.Profit,
		Balance:   snap.Balance,
	}}
	var out bytes.Buffer
	if err := gocsv.Marshal(&rows, &out); err != nil {
		h.l.Error("encode csv", applogger.Error(err))
		return c.String(http.StatusInternalServerError, "error")
	}
	return c.Blob(http.StatusOK, "text/csv", out.Bytes())
}

func (h *TelemetryHandler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
