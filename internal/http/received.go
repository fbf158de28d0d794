package http

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/jmehdipour/sms-bridge/internal/service/gateway"
)

func receivedHandler(svc *gateway.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		msgs, err := svc.ReceivedMessages(c.Request().Context())
		if err != nil {
			return errorJSON(c, err)
		}
		return c.JSON(http.StatusOK, msgs)
	}
}

func deleteReceivedHandler(svc *gateway.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := bridgeIDParam(c)
		if err != nil {
			return errorJSON(c, err)
		}
		if err := svc.DeleteReceivedMessage(c.Request().Context(), id); err != nil {
			return c.JSON(statusOf(err), map[string]any{
				"sms_bridge_id": id,
				"deleted":       false,
				"feedback":      err.Error(),
			})
		}
		return c.JSON(http.StatusOK, map[string]any{
			"sms_bridge_id": id,
			"deleted":       true,
			"feedback":      "message deleted",
		})
	}
}
