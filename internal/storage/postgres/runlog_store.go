// Package postgres mirrors the run audit log into Postgres.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/award-ingestor/internal/runlog"
)

// DefaultTable holds one row per (keyword, search_id, start_date, end_date).
const DefaultTable = "ingest_runs"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for audit rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// RunLogStore upserts audit entries into a Postgres table.
//
// Expected schema:
//
//	CREATE TABLE ingest_runs (
//		keyword       text NOT NULL,
//		search_id     text NOT NULL,
//		start_date    text NOT NULL,
//		end_date      text NOT NULL,
//		total_records integer NOT NULL,
//		capture_time  text NOT NULL,
//		PRIMARY KEY (keyword, search_id, start_date, end_date)
//	);
type RunLogStore struct {
	pool  execCloser
	table string
	query string
}

// NewRunLogStore connects to Postgres using cfg.
func NewRunLogStore(ctx context.Context, cfg Config) (*RunLogStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return newStore(pool, table), nil
}

// NewRunLogStoreWithPool builds a store on an existing pool (primarily for testing).
func NewRunLogStoreWithPool(pool execCloser, table string) (*RunLogStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return newStore(pool, name), nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = DefaultTable
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

func newStore(pool execCloser, table string) *RunLogStore {
	return &RunLogStore{
		pool:  pool,
		table: table,
		query: fmt.Sprintf(`
INSERT INTO %s (keyword, search_id, start_date, end_date, total_records, capture_time)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (keyword, search_id, start_date, end_date) DO UPDATE
SET total_records = EXCLUDED.total_records,
	capture_time = EXCLUDED.capture_time`, table),
	}
}

// Close releases the underlying pool resources.
func (s *RunLogStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Record upserts e. It satisfies runlog.Recorder.
func (s *RunLogStore) Record(ctx context.Context, e runlog.Entry) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("run log store is not configured")
	}
	_, err := s.pool.Exec(ctx, s.query,
		e.Keyword,
		e.SearchID,
		e.StartDate,
		e.EndDate,
		e.TotalRecords,
		e.CaptureTime,
	)
	if err != nil {
		return fmt.Errorf("upsert run log row: %w", err)
	}
	return nil
}
