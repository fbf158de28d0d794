package db

import (
	"time"

	_ "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/jmoiron/sqlx"

	"github.com/jmehdipour/sms-bridge/internal/config"
)

// NewClickHouseConnection opens the archive on ClickHouse, e.g.
// clickhouse://default:@localhost:9000/smsbridge?dial_timeout=5s
func NewClickHouseConnection(c config.DatabaseConfig) (*sqlx.DB, error) {
	return open("clickhouse", c, 3*time.Second)
}
