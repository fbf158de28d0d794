package http

import (
	"crypto/subtle"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/jmehdipour/sms-bridge/internal/config"
	"github.com/jmehdipour/sms-bridge/internal/provider/registry"
	"github.com/jmehdipour/sms-bridge/internal/service/gateway"
	"github.com/jmehdipour/sms-bridge/internal/webhook"
)

const maxCallbackBody = 1 << 20

// webhookHandler accepts vendor pushes for the configured provider. The
// vendor proves itself with the callback key header set on registration.
func webhookHandler(svc *gateway.Service, cfg config.Config) echo.HandlerFunc {
	return func(c echo.Context) error {
		name := strings.ToLower(c.Param("provider"))
		if name != cfg.SMS.Provider {
			return c.JSON(http.StatusNotFound, map[string]any{"success": false, "error": "unknown provider"})
		}

		key := registry.CallbackKey(cfg, name)
		if key == "" {
			return c.JSON(http.StatusForbidden, map[string]any{"success": false, "error": "callbacks are not configured"})
		}
		got := c.Request().Header.Get(webhook.HeaderName(name))
		if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
			return c.JSON(http.StatusUnauthorized, map[string]any{"success": false, "error": "invalid callback key"})
		}

		body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxCallbackBody))
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]any{"success": false, "error": "unreadable body"})
		}

		if err := svc.HandleCallback(c.Request().Context(), c.Param("event"), body); err != nil {
			return errorJSON(c, err)
		}
		return c.JSON(http.StatusOK, map[string]any{"success": true})
	}
}
