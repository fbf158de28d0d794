package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	echoMid "github.com/labstack/echo/v4/middleware"
	gommonlog "github.com/labstack/gommon/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/jmehdipour/sms-bridge/internal/config"
	"github.com/jmehdipour/sms-bridge/internal/http/middleware"
	"github.com/jmehdipour/sms-bridge/internal/logger"
	"github.com/jmehdipour/sms-bridge/internal/metrics"
	"github.com/jmehdipour/sms-bridge/internal/repository"
	"github.com/jmehdipour/sms-bridge/internal/service/gateway"
)

type Deps struct {
	Config  config.Config
	Gateway *gateway.Service
	Archive repository.StatusArchive // optional
	Redis   *redis.Client            // optional
}

type Server struct{ e *echo.Echo }

func NewServer(d Deps) *Server {
	cfg := d.Config

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Logger.SetLevel(echoLogLevel(cfg.Log.Level))
	e.Use(echoMid.Recover(), requestLogger())

	metrics.MustRegister(prometheus.DefaultRegisterer)

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// health
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	// middlewares
	authMW := middleware.APIKeyMiddleware(cfg.HTTP.APIKey)
	rlMW := middleware.RateLimitMiddleware(middleware.RateLimitConfig{
		Redis:          d.Redis,
		DefaultRPS:     cfg.RateLimit.RPS,
		KeyPrefix:      "rl:client:",
		Window:         time.Second,
		RetryAfterHint: true,
	})

	g := e.Group("/smsgateway")

	// vendors authenticate with their callback key, not the API key
	g.POST("/webhooks/:provider/:event", webhookHandler(d.Gateway, cfg))

	api := g.Group("", authMW, rlMW)
	api.POST("/send-sms", sendSMSHandler(d.Gateway, cfg.Testing))
	api.GET("/sms-status/:id", smsStatusHandler(d.Gateway))
	api.GET("/provider-id/:id", providerIDHandler(d.Gateway))
	api.GET("/received-sms", receivedHandler(d.Gateway))
	api.DELETE("/received-sms/:id", deleteReceivedHandler(d.Gateway))
	api.GET("/delete-received-sms/:id", deleteReceivedHandler(d.Gateway))
	api.GET("/recent-statuses", recentStatusesHandler(d.Gateway))
	api.GET("/gateway-status", gatewayStatusHandler(d.Gateway))
	api.GET("/status-archive", statusArchiveHandler(d.Archive))

	api.GET("/test/send-sms", testSendHandler(d.Gateway, cfg.Testing))
	api.GET("/test/debug-status", debugStatusHandler(d.Gateway, cfg.Testing))

	return &Server{e: e}
}

func (s *Server) Start(addr string) error {
	logger.Log.Info("http: listening", zap.String("addr", addr))
	return s.e.Start(addr)
}

func (s *Server) Shutdown(ctx context.Context) error { return s.e.Shutdown(ctx) }

// ServeHTTP lets tests drive the router without a listener.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.e.ServeHTTP(w, r) }

func echoLogLevel(level string) gommonlog.Lvl {
	switch strings.ToLower(level) {
	case "debug":
		return gommonlog.DEBUG
	case "warn", "warning":
		return gommonlog.WARN
	case "error":
		return gommonlog.ERROR
	default:
		return gommonlog.INFO
	}
}

func requestLogger() echo.MiddlewareFunc {
	return echoMid.RequestLoggerWithConfig(echoMid.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogError:    true,
		LogValuesFunc: func(c echo.Context, v echoMid.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
				zap.String("remote_ip", v.RemoteIP),
			}
			if v.Error != nil {
				logger.Log.Warn("http request", append(fields, zap.Error(v.Error))...)
				return nil
			}
			logger.Log.Debug("http request", fields...)
			return nil
		},
	})
}
