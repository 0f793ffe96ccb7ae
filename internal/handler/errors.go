package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/fitstack/identity-service/internal/domain"
)

// HTTPErrorHandler translates errors bubbling out of handlers into the API
// contract: domain kinds map to their status codes, echo's own errors keep
// their status, and everything else is a 400 carrying the error message.
func HTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	if kind := domain.KindOf(err); kind != "" {
		_ = c.JSON(domain.HTTPStatus(kind), echo.Map{"error": err.Error()})
		return
	}
	if he, ok := err.(*echo.HTTPError); ok {
		_ = c.JSON(he.Code, echo.Map{"error": he.Message})
		return
	}
	_ = c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
}
