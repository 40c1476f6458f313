package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

// CORSConfig holds CORS configuration.
type CORSConfig struct {
	AllowOrigins []string
	AllowMethods []string
	AllowHeaders []string
	MaxAge       int
}

// CORS returns CORS middleware. Only the operator API is meant for browsers.
func CORS(cfg CORSConfig) echo.MiddlewareFunc {
	methods := strings.Join(cfg.AllowMethods, ", ")
	headers := strings.Join(cfg.AllowHeaders, ", ")

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			origin := c.Request().Header.Get(echo.HeaderOrigin)
			h := c.Response().Header()
			h.Add(echo.HeaderVary, echo.HeaderOrigin)

			allowOrigin := matchOrigin(cfg.AllowOrigins, origin)
			if allowOrigin == "" {
				return next(c)
			}
			h.Set(echo.HeaderAccessControlAllowOrigin, allowOrigin)

			if c.Request().Method != http.MethodOptions {
				return next(c)
			}

			// preflight
			if methods != "" {
				h.Set(echo.HeaderAccessControlAllowMethods, methods)
			}
			if headers != "" {
				h.Set(echo.HeaderAccessControlAllowHeaders, headers)
			}
			if cfg.MaxAge > 0 {
				h.Set(echo.HeaderAccessControlMaxAge, strconv.Itoa(cfg.MaxAge))
			}
			return c.NoContent(http.StatusNoContent)
		}
	}
}

func matchOrigin(allowed []string, origin string) string {
	for _, o := range allowed {
		if o == "*" {
			if origin != "" {
				return origin
			}
			return "*"
		}
		if origin != "" && o == origin {
			return origin
		}
	}
	return ""
}
