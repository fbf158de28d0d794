package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jmehdipour/sms-bridge/internal/db"
	"github.com/jmehdipour/sms-bridge/internal/logger"
	"github.com/jmehdipour/sms-bridge/internal/repository"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the status archive table (idempotent)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		defer logger.Sync()

		if cfg.Archive.Driver == "" {
			return fmt.Errorf("archive.driver is not set; nothing to migrate")
		}
		ddl, err := repository.Schema(cfg.Archive.Driver)
		if err != nil {
			return err
		}

		sqlDB, err := db.Open(cfg.Archive.Driver, cfg.Archive.DatabaseConfig)
		if err != nil {
			return fmt.Errorf("open db: %w", err)
		}
		defer sqlDB.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()
		if _, err := sqlDB.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("exec migration: %w", err)
		}

		logger.Log.Info("migration complete", zap.String("driver", cfg.Archive.Driver), zap.String("table", "status_archive"))
		return nil
	},
}
