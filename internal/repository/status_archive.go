package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jmehdipour/sms-bridge/internal/model"
)

const (
	DriverMySQL      = "mysql"
	DriverClickHouse = "clickhouse"
)

// ArchivedStatus is one row of status_archive.
type ArchivedStatus struct {
	BridgeID   string    `db:"sms_bridge_id" json:"sms_bridge_id"`
	ProviderID string    `db:"provider_id"   json:"provider_id"`
	Status     string    `db:"status"        json:"status"`
	SentAt     time.Time `db:"sent_at"       json:"sent_at"`
	StatusAt   time.Time `db:"status_at"     json:"status_at"`
	ArchivedAt time.Time `db:"archived_at"   json:"archived_at"`
}

// StatusArchive keeps status records after they leave memory.
type StatusArchive interface {
	InsertBatch(ctx context.Context, recs []model.StatusRecord) error
	ListRecent(ctx context.Context, limit int) ([]ArchivedStatus, error)
}

type statusArchive struct {
	db     *sqlx.DB
	driver string
	now    func() time.Time
}

func NewStatusArchive(db *sqlx.DB, driver string) (StatusArchive, error) {
	if _, err := Schema(driver); err != nil {
		return nil, err
	}
	return &statusArchive{db: db, driver: driver, now: time.Now}, nil
}

// Schema returns the DDL for the archive table.
func Schema(driver string) (string, error) {
	switch driver {
	case DriverMySQL:
		return `
		CREATE TABLE IF NOT EXISTS status_archive (
		    sms_bridge_id CHAR(26)     NOT NULL PRIMARY KEY,
		    provider_id   VARCHAR(128) NOT NULL,
		    status        VARCHAR(16)  NOT NULL,
		    sent_at       DATETIME(3)  NOT NULL,
		    status_at     DATETIME(3)  NOT NULL,
		    archived_at   DATETIME(3)  NOT NULL,
		    KEY idx_status_archive_sent_at (sent_at)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`, nil
	case DriverClickHouse:
		return `
		CREATE TABLE IF NOT EXISTS status_archive (
		    sms_bridge_id String,
		    provider_id   String,
		    status        LowCardinality(String),
		    sent_at       DateTime64(3),
		    status_at     DateTime64(3),
		    archived_at   DateTime64(3)
		) ENGINE = ReplacingMergeTree(archived_at)
		ORDER BY sms_bridge_id`, nil
	}
	return "", fmt.Errorf("unsupported archive driver: %q", driver)
}

func (r *statusArchive) insertQuery() string {
	const q = `INSERT INTO status_archive
		    (sms_bridge_id, provider_id, status, sent_at, status_at, archived_at)
		VALUES
		    (?,             ?,           ?,      ?,       ?,         ?)`
	if r.driver == DriverMySQL {
		return q + ` ON DUPLICATE KEY UPDATE status = VALUES(status), status_at = VALUES(status_at), archived_at = VALUES(archived_at)`
	}
	// ReplacingMergeTree keeps the latest archived_at per id
	return q
}

// InsertBatch writes recs in one transaction. Re-archiving an id overwrites it.
func (r *statusArchive) InsertBatch(ctx context.Context, recs []model.StatusRecord) error {
	if len(recs) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PreparexContext(ctx, r.insertQuery())
	if err != nil {
		return fmt.Errorf("prepare archive insert: %w", err)
	}
	defer stmt.Close()

	now := r.now().UTC()
	for _, rec := range recs {
		statusAt := rec.StatusAt
		if statusAt.IsZero() {
			statusAt = rec.SentAt
		}
		if _, err := stmt.ExecContext(ctx,
			rec.BridgeID.String(), rec.ProviderID.String(), rec.Status.String(),
			rec.SentAt.UTC(), statusAt.UTC(), now,
		); err != nil {
			return fmt.Errorf("archive %s: %w", rec.BridgeID, err)
		}
	}
	return tx.Commit()
}

func (r *statusArchive) ListRecent(ctx context.Context, limit int) ([]ArchivedStatus, error) {
	if limit <= 0 || limit > 1000 {
		limit = 50
	}

	from := "status_archive"
	if r.driver == DriverClickHouse {
		from += " FINAL"
	}
	q := `
		SELECT sms_bridge_id, provider_id, status, sent_at, status_at, archived_at
		FROM ` + from + `
		ORDER BY sent_at DESC
		LIMIT ?`

	var rows []ArchivedStatus
	if err := r.db.SelectContext(ctx, &rows, q, limit); err != nil {
		return nil, err
	}
	return rows, nil
}
