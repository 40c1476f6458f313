package api

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"MT5Hub/internal/domain/models"
	"MT5Hub/internal/usecase"
	xhttp "MT5Hub/pkg/http"
	applogger "MT5Hub/pkg/logger"
	xutil "MT5Hub/pkg/util"
)

const HeaderAPIKey = "X-API-Key"

// AdminHandler is the operator API. It replaces the chat commands of the bot operator.
type AdminHandler struct {
	ops    *usecase.OperatorService
	stream http.Handler
	key    string
	now    func() time.Time
	l      *applogger.Logger
}

// NewAdminHandler builds the operator API. stream may be nil when streaming is disabled.
func NewAdminHandler(ops *usecase.OperatorService, stream http.Handler, key string, l *applogger.Logger) *AdminHandler {
	return &AdminHandler{
		ops:    ops,
		stream: stream,
		key:    key,
		now:    time.Now,
		l:      l.With(applogger.String("component", "admin_api")),
	}
}

func (h *AdminHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/v1/admin", h.requireKey)
	g.GET("/bots", h.Bots)
	g.GET("/balances", h.Balances)
	g.PUT("/trade", h.SetTrade)
	g.GET("/history", h.History)
	g.DELETE("/history", h.ClearHistory)
	if h.stream != nil {
		e.GET("/api/v1/stream", echo.WrapHandler(h.stream), h.requireKey)
	}
}

// requireKey accepts the key from the header, or from ?key= for websocket clients
// that cannot set headers.
func (h *AdminHandler) requireKey(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		got := c.Request().Header.Get(HeaderAPIKey)
		if got == "" {
			got = c.QueryParam("key")
		}
		if h.key == "" || subtle.ConstantTimeCompare([]byte(got), []byte(h.key)) != 1 {
			h.l.Warn("admin request rejected", applogger.String("path", c.Path()), applogger.String("remote", c.RealIP()))
			return xhttp.AppErrorResponse(c, xhttp.UnauthorizedError("invalid api key"))
		}
		return next(c)
	}
}

func (h *AdminHandler) Bots(c echo.Context) error {
	bots := h.ops.Bots()
	return xhttp.ListResponse(c, bots, int64(len(bots)))
}

func (h *AdminHandler) Balances(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.ops.Balances())
}

type tradeResult struct {
	Allowed bool  `json:"allowed"`
	Changed []int `json:"changed"`
}

func (h *AdminHandler) SetTrade(c echo.Context) error {
	req := &models.TradePermissionRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	changed, err := h.ops.SetTradeAllowed(c.Request().Context(), req.BotID, *req.Allowed)
	if err != nil {
		if errors.Is(err, models.ErrUnknownBot) {
			return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("bot %d not found", *req.BotID))
		}
		h.l.Error("set trade permission", applogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("could not update permission").WithError(err))
	}
	return xhttp.SuccessResponse(c, tradeResult{Allowed: *req.Allowed, Changed: changed})
}

type historyResult struct {
	From      time.Time                `json:"from"`
	To        time.Time                `json:"to"`
	Snapshots []models.BalanceSnapshot `json:"snapshots"`
	Latest    *models.BalanceSnapshot  `json:"latest"`
}

func (h *AdminHandler) History(c echo.Context) error {
	req := &models.HistoryRangeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	now := h.now().UTC()
	to := xutil.ParseTimeDefault(req.To, now)
	from := xutil.ParseTimeDefault(req.From, to.Add(-24*time.Hour))
	if from.After(to) {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("from must not be after to"))
	}

	ctx := c.Request().Context()
	snaps, err := h.ops.History(ctx, from, to, req.Limit)
	if err != nil {
		h.l.Error("load balance history", applogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("could not load history").WithError(err))
	}
	latest, err := h.ops.LatestSnapshot(ctx)
	if err != nil {
		h.l.Error("load latest snapshot", applogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("could not load history").WithError(err))
	}
	return xhttp.SuccessResponse(c, historyResult{From: from, To: to, Snapshots: snaps, Latest: latest})
}

func (h *AdminHandler) ClearHistory(c echo.Context) error {
	if err := h.ops.ClearHistory(c.Request().Context()); err != nil {
		h.l.Error("clear history", applogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("could not clear history").WithError(err))
	}
	return c.NoContent(http.StatusNoContent)
}
