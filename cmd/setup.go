package cmd

import (
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/jmehdipour/sms-bridge/internal/config"
	"github.com/jmehdipour/sms-bridge/internal/db"
	"github.com/jmehdipour/sms-bridge/internal/logger"
	"github.com/jmehdipour/sms-bridge/internal/repository"
)

// loadConfig loads config and builds the global logger from it.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	if err := logger.Init(cfg.Log.Level, cfg.Log.Encoding, cfg.Log.File); err != nil {
		return config.Config{}, fmt.Errorf("init logger: %w", err)
	}
	return cfg, nil
}

// openArchive returns a nil archive when archive.driver is empty.
func openArchive(cfg config.Config) (*sqlx.DB, repository.StatusArchive, error) {
	if cfg.Archive.Driver == "" {
		return nil, nil, nil
	}
	sqlDB, err := db.Open(cfg.Archive.Driver, cfg.Archive.DatabaseConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("%s connect: %w", cfg.Archive.Driver, err)
	}
	archive, err := repository.NewStatusArchive(sqlDB, cfg.Archive.Driver)
	if err != nil {
		_ = sqlDB.Close()
		return nil, nil, err
	}
	return sqlDB, archive, nil
}
