package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/jmehdipour/sms-bridge/internal/repository"
	"github.com/jmehdipour/sms-bridge/internal/service/gateway"
)

const (
	defaultStatusWindow = time.Hour
	maxStatusWindow     = 30 * 24 * time.Hour
)

func smsStatusHandler(svc *gateway.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := bridgeIDParam(c)
		if err != nil {
			return errorJSON(c, err)
		}
		st, err := svc.Status(c.Request().Context(), id)
		if err != nil {
			return errorJSON(c, err)
		}
		return c.JSON(http.StatusOK, map[string]any{"sms_bridge_id": id, "status": st})
	}
}

func providerIDHandler(svc *gateway.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := bridgeIDParam(c)
		if err != nil {
			return errorJSON(c, err)
		}
		pid, err := svc.ProviderID(c.Request().Context(), id)
		if err != nil {
			return errorJSON(c, err)
		}
		return c.JSON(http.StatusOK, map[string]any{"sms_bridge_id": id, "provider_id": pid})
	}
}

func recentStatusesHandler(svc *gateway.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		window := defaultStatusWindow
		if v := c.QueryParam("window"); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil || d <= 0 {
				return c.JSON(http.StatusBadRequest, map[string]any{"success": false, "error": "invalid window"})
			}
			window = min(d, maxStatusWindow)
		}
		recs, err := svc.RecentStatuses(c.Request().Context(), window)
		if err != nil {
			return errorJSON(c, err)
		}
		return c.JSON(http.StatusOK, recs)
	}
}

func gatewayStatusHandler(svc *gateway.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		h := svc.Health()
		return c.JSON(http.StatusOK, map[string]any{
			"gateway":  "up",
			"provider": h.Provider,
			"healthy":  h.Healthy,
			"detail":   h.Detail,
			"queued":   h.Queued,
		})
	}
}

func statusArchiveHandler(archive repository.StatusArchive) echo.HandlerFunc {
	return func(c echo.Context) error {
		if archive == nil {
			return c.JSON(http.StatusNotImplemented, map[string]any{"success": false, "error": "status archive is not configured"})
		}

		limit := 50
		if v := c.QueryParam("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
				limit = n
			}
		}

		rows, err := archive.ListRecent(c.Request().Context(), limit)
		if err != nil {
			c.Logger().Errorf("archive list failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]any{"success": false, "error": "query failed"})
		}
		return c.JSON(http.StatusOK, map[string]any{
			"limit":   limit,
			"count":   len(rows),
			"results": rows,
		})
	}
}
