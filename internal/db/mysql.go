package db

import (
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	"github.com/jmehdipour/sms-bridge/internal/config"
)

// NewMySQLConnection opens the archive on MySQL. The DSN should carry
// parseTime=true so DATETIME columns scan into time.Time.
func NewMySQLConnection(c config.DatabaseConfig) (*sqlx.DB, error) {
	return open("mysql", c, 5*time.Second)
}
