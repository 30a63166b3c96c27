package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

var (
	// ErrNotFound is returned when a looked-up row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAvailabilityExists is returned when an availability with the same
	// URL or (source, code) is already stored. Callers treat it as
	// "already satisfied".
	ErrAvailabilityExists = errors.New("availability already exists")
	// ErrNotPending is returned when a transition targets a discovery entry
	// that already reached a terminal state.
	ErrNotPending = errors.New("discovery entry is not pending")
)

// MaxAttempts bounds the retry counter of discovery entries.
const MaxAttempts = 3

const defaultBatchSize = 500

type DB struct {
	sql       *sqlx.DB
	dialect   dialect
	batchSize int
}

// Open connects to the store. DSNs starting with postgres:// or
// postgresql:// use PostgreSQL through pgx, anything else is a SQLite file
// path.
func Open(dsn string) (*DB, error) {
	d := dialectFor(dsn)
	db, err := sqlx.Open(d.driver, d.connString(dsn))
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	// Ensure schema exists for convenience.
	for _, stmt := range d.schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("creating schema: %w", err)
		}
	}
	return &DB{sql: db, dialect: d, batchSize: defaultBatchSize}, nil
}

func (d *DB) Close() error {
	if d == nil || d.sql == nil {
		return nil
	}
	return d.sql.Close()
}

// Dialect returns "sqlite" or "postgres".
func (d *DB) Dialect() string { return d.dialect.name }

// SetBatchSize sets how many rows go into one bulk statement.
func (d *DB) SetBatchSize(n int) {
	if n > 0 {
		d.batchSize = n
	}
}

// EnsureSource creates or renames the source row with the given id.
func (d *DB) EnsureSource(ctx context.Context, id int64, name string) error {
	_, err := d.sql.ExecContext(ctx, d.sql.Rebind(`INSERT INTO sources(id, name) VALUES(?, ?) ON CONFLICT(id) DO UPDATE SET name = excluded.name`), id, strings.ToLower(name))
	return err
}

type SourceStats struct {
	SourceID       int64  `db:"source_id" json:"source_id"`
	Source         string `db:"source" json:"source"`
	Availabilities int    `db:"availabilities" json:"availabilities"`
	InStock        int    `db:"in_stock" json:"in_stock"`
	Alerts         int    `db:"alerts" json:"alerts"`
}

// GetStats returns per-source availability and alert counts.
func (d *DB) GetStats(ctx context.Context) ([]SourceStats, error) {
	query := `
		SELECT
			s.id AS source_id,
			s.name AS source,
			(SELECT COUNT(*) FROM availabilities a WHERE a.source_id = s.id) AS availabilities,
			(SELECT COUNT(*) FROM availabilities a WHERE a.source_id = s.id AND a.stock = 1) AS in_stock,
			(SELECT COUNT(*) FROM alerts al JOIN availabilities a ON a.id = al.availability_id WHERE a.source_id = s.id) AS alerts
		FROM
			sources s
		ORDER BY
			s.name;
	`
	var stats []SourceStats
	if err := d.sql.SelectContext(ctx, &stats, query); err != nil {
		return nil, err
	}
	return stats, nil
}

type QueueStats struct {
	Pending   int `db:"pending" json:"pending"`
	Processed int `db:"processed" json:"processed"`
	Invalid   int `db:"invalid" json:"invalid"`
}

// GetQueueStats returns state counts for the channel-scoped and the
// user-scoped discovery queues.
func (d *DB) GetQueueStats(ctx context.Context) (channel, user QueueStats, err error) {
	q := `
		SELECT
			COALESCE(SUM(CASE WHEN processed = 0 AND invalid = 0 AND counter < %d THEN 1 ELSE 0 END), 0) AS pending,
			COALESCE(SUM(processed), 0) AS processed,
			COALESCE(SUM(invalid), 0) AS invalid
		FROM %s`
	if err = d.sql.GetContext(ctx, &channel, fmt.Sprintf(q, MaxAttempts, "discovery_channel_entries")); err != nil {
		return
	}
	err = d.sql.GetContext(ctx, &user, fmt.Sprintf(q, MaxAttempts, "discovery_user_entries"))
	return
}
