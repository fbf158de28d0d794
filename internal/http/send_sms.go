package http

import (
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/jmehdipour/sms-bridge/internal/config"
	"github.com/jmehdipour/sms-bridge/internal/model"
	"github.com/jmehdipour/sms-bridge/internal/service/gateway"
)

type sendReq struct {
	To          string `json:"to"`
	Body        string `json:"body"`
	SenderID    string `json:"sender_id"`
	CallbackURL string `json:"callback_url"`
}

func sendSMSHandler(svc *gateway.Service, tc config.TestingConfig) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req sendReq
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]any{"success": false, "error": "bad request"})
		}

		// Normalize
		req.To = strings.TrimSpace(req.To)
		req.SenderID = strings.TrimSpace(req.SenderID)
		req.CallbackURL = strings.TrimSpace(req.CallbackURL)

		if tc.Debug && !slices.Contains(tc.AllowedNumbers, req.To) {
			return c.JSON(http.StatusForbidden, map[string]any{
				"success": false,
				"error":   "debug mode: number not in testing.allowed_numbers",
			})
		}

		return enqueue(c, svc, model.SendRequest{
			To:          req.To,
			Body:        req.Body,
			SenderID:    req.SenderID,
			CallbackURL: req.CallbackURL,
		})
	}
}

func enqueue(c echo.Context, svc *gateway.Service, req model.SendRequest) error {
	id, err := svc.Send(c.Request().Context(), req)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusAccepted, map[string]any{
		"success":       true,
		"message":       "SMS queued for sending via " + svc.ProviderName(),
		"sms_bridge_id": id,
	})
}

// testSendHandler queues a fixed message to the configured test number.
func testSendHandler(svc *gateway.Service, tc config.TestingConfig) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !tc.Debug {
			return c.JSON(http.StatusNotFound, map[string]any{"success": false, "error": "testing endpoints are disabled"})
		}
		if tc.PhoneNumber == "" {
			return c.JSON(http.StatusBadRequest, map[string]any{"success": false, "error": "testing.phone_number is not set"})
		}
		return enqueue(c, svc, model.SendRequest{
			To:   tc.PhoneNumber,
			Body: fmt.Sprintf("Test message from SMS bridge via %s at %s", svc.ProviderName(), time.Now().Format(time.RFC3339)),
		})
	}
}

func debugStatusHandler(svc *gateway.Service, tc config.TestingConfig) echo.HandlerFunc {
	return func(c echo.Context) error {
		allowed := tc.AllowedNumbers
		if allowed == nil {
			allowed = []string{}
		}
		return c.JSON(http.StatusOK, map[string]any{
			"debug":           tc.Debug,
			"provider":        svc.ProviderName(),
			"test_number":     tc.PhoneNumber,
			"allowed_numbers": allowed,
		})
	}
}
