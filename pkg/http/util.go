package http

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

// HeaderInt64 parses a required integer header.
func HeaderInt64(c echo.Context, name string) (int64, error) {
	raw := strings.TrimSpace(c.Request().Header.Get(name))
	if raw == "" {
		return 0, fmt.Errorf("missing header %s", name)
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("header %s: not an integer", name)
	}
	return v, nil
}

// HeaderInt parses a required integer header that must fit in an int.
func HeaderInt(c echo.Context, name string) (int, error) {
	raw := strings.TrimSpace(c.Request().Header.Get(name))
	if raw == "" {
		return 0, fmt.Errorf("missing header %s", name)
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("header %s: not an integer", name)
	}
	return v, nil
}
