package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jmehdipour/sms-bridge/internal/db"
	"github.com/jmehdipour/sms-bridge/internal/dispatcher"
	httpSrv "github.com/jmehdipour/sms-bridge/internal/http"
	"github.com/jmehdipour/sms-bridge/internal/inbox"
	"github.com/jmehdipour/sms-bridge/internal/kafka"
	"github.com/jmehdipour/sms-bridge/internal/logger"
	"github.com/jmehdipour/sms-bridge/internal/model"
	"github.com/jmehdipour/sms-bridge/internal/provider"
	"github.com/jmehdipour/sms-bridge/internal/provider/registry"
	"github.com/jmehdipour/sms-bridge/internal/service/gateway"
	"github.com/jmehdipour/sms-bridge/internal/status"
	"github.com/jmehdipour/sms-bridge/internal/webhook"
	"github.com/jmehdipour/sms-bridge/internal/worker"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, the send queue and the vendor session",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		defer logger.Sync()
		log := logger.Log

		box := inbox.New(cfg.Inbox.Path(), logger.For("inbox", nil))
		box.Load()

		// svc is set before any send can reach the tracker or the queue hooks
		var svc *gateway.Service
		tracker := status.NewTracker(status.Config{
			Timeout:     cfg.Status.Timeout,
			EventBuffer: cfg.Status.EventBuffer,
			MaxOrphans:  cfg.Status.MaxOrphans,
			OnResolve: func(rec model.StatusRecord, source string) {
				if svc != nil {
					svc.OnResolve(rec, source)
				}
			},
		}, logger.For("status", nil))

		p, err := registry.New(cfg, registry.Deps{Tracker: tracker, Inbox: box})
		if err != nil {
			tracker.Close()
			return err
		}

		q := dispatcher.New(p, dispatcher.Config{
			Interval:    cfg.Queue.Interval,
			BatchSize:   cfg.Queue.BatchSize,
			SendTimeout: cfg.Queue.SendTimeout,
			OnFinal: func(id model.BridgeID, st dispatcher.ItemState) {
				svc.OnQueueFinal(id, st)
			},
		}, logger.For(p.Name(), nil))
		svc = gateway.New(p, q, gateway.Config{
			CountryCode:   cfg.SMS.CountryCode,
			NotifyTimeout: cfg.Queue.SendTimeout,
		}, logger.For(p.Name(), nil))

		sqlDB, archive, err := openArchive(cfg)
		if err != nil {
			tracker.Close()
			return err
		}
		if sqlDB != nil {
			defer func() { _ = sqlDB.Close() }()
		}

		var rdb *redis.Client
		if cfg.Redis.Addr != "" {
			rdb, err = db.NewRedisClient(cfg.Redis)
			if err != nil {
				tracker.Close()
				return fmt.Errorf("redis connect: %w", err)
			}
			defer func() { _ = rdb.Close() }()
		}

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		var wg sync.WaitGroup
		spawn := func(name string, run func(context.Context) error) {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					log.Error("background task stopped", zap.String("task", name), zap.Error(err))
				}
			}()
		}

		spawn("status", tracker.Run)
		if r, ok := p.(provider.Runner); ok {
			spawn("session", r.Run)
		}
		spawn("queue", q.Run)

		if cfg.Retention.Enabled {
			ret := worker.NewRetention(tracker, svc, archive, cfg.Retention.Window(), cfg.Retention.Interval, logger.For("retention", nil))
			spawn("retention", ret.Run)
		}

		if cfg.Kafka.Enabled {
			consumer, err := kafka.NewConsumer(cfg.Kafka)
			if err != nil {
				cancel()
				wg.Wait()
				tracker.Close()
				return fmt.Errorf("kafka consumer: %w", err)
			}
			defer func() { _ = consumer.Close() }()
			spawn("kafka", worker.NewCallbackIngester(consumer, svc, logger.For(p.Name(), nil)).Run)
		}

		if cfg.Webhook.Enabled {
			if api, ok := p.(webhook.API); ok {
				wctx, wcancel := context.WithTimeout(ctx, cfg.Webhook.StartupTimeout)
				desired := webhook.Desired(cfg, registry.CallbackKey(cfg, cfg.SMS.Provider))
				webhook.NewReconciler(api, logger.For(p.Name(), nil)).Ensure(wctx, desired)
				wcancel()
			} else {
				log.Warn("webhook management is not supported by provider", zap.String("provider", p.Name()))
			}
		}

		server := httpSrv.NewServer(httpSrv.Deps{
			Config:  cfg,
			Gateway: svc,
			Archive: archive,
			Redis:   rdb,
		})

		errCh := make(chan error, 1)
		go func() {
			log.Info("starting http", zap.String("addr", cfg.HTTP.Addr), zap.String("provider", p.Name()))
			errCh <- server.Start(cfg.HTTP.Addr)
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigCh)

		select {
		case sig := <-sigCh:
			log.Info("signal received, shutting down", zap.String("signal", sig.String()))
		case err := <-errCh:
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("http server exited", zap.Error(err))
			}
		}

		shCtx, shCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shCancel()
		_ = server.Shutdown(shCtx)

		cancel()
		q.Close()
		wg.Wait()
		tracker.Close()
		svc.Wait()
		return nil
	},
}
