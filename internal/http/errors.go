package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/jmehdipour/sms-bridge/internal/model"
	"github.com/jmehdipour/sms-bridge/internal/provider"
	"github.com/jmehdipour/sms-bridge/internal/service/gateway"
)

// statusOf maps service errors to HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, provider.ErrInvalidRequest), errors.Is(err, model.ErrInvalidBridgeID):
		return http.StatusBadRequest
	case errors.Is(err, provider.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, provider.ErrNotImplemented):
		return http.StatusNotImplemented
	case errors.Is(err, provider.ErrRejected):
		return http.StatusBadGateway
	case errors.Is(err, provider.ErrUnavailable), gateway.IsClosed(err):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func errorJSON(c echo.Context, err error) error {
	code := statusOf(err)
	if code == http.StatusInternalServerError {
		c.Logger().Errorf("%s %s: %v", c.Request().Method, c.Path(), err)
	}
	return c.JSON(code, map[string]any{"success": false, "error": err.Error()})
}

func bridgeIDParam(c echo.Context) (model.BridgeID, error) {
	return model.ParseBridgeID(c.Param("id"))
}
