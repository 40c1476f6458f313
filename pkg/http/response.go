package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

func respond(c echo.Context, status int, data, errs interface{}) error {
	return c.JSON(status, APIResponse{
		Status:  status,
		Message: http.StatusText(status),
		Data:    data,
		Errors:  errs,
	})
}

// DataResponse writes data with the given status.
func DataResponse(c echo.Context, statusCode int, data interface{}) error {
	return respond(c, statusCode, data, nil)
}

// ListResponse writes rows with their total count.
func ListResponse(c echo.Context, rows interface{}, total int64) error {
	return respond(c, http.StatusOK, &ListDataResponse{Rows: rows, Total: total}, nil)
}

func SuccessResponse(c echo.Context, data interface{}) error {
	return respond(c, http.StatusOK, data, nil)
}

// BadRequestResponse writes validation errors as returned by ReadAndValidateRequest.
func BadRequestResponse(c echo.Context, errs interface{}) error {
	return respond(c, http.StatusBadRequest, nil, errs)
}

func InternalServerErrorResponse(c echo.Context) error {
	return respond(c, http.StatusInternalServerError, nil, []*AppError{InternalError("something went wrong")})
}

// AppErrorResponse writes err with its own status; anything else becomes a 500.
func AppErrorResponse(c echo.Context, err error) error {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return respond(c, appErr.Status, nil, []*AppError{appErr})
	}
	return InternalServerErrorResponse(c)
}
