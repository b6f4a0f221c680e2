// Package postgres persists server identity snapshots in Postgres so a
// restarted crawl keeps its robots verdicts and per-server counters.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/crawlscope/internal/server"
)

// ErrNotFound is returned when no snapshot is stored under a key.
var ErrNotFound = errors.New("server snapshot not found")

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const defaultTable = "server_snapshots"

// Config controls the Postgres connection pool used for snapshots.
type Config struct {
	DSN             string        `mapstructure:"dsn"`
	Table           string        `mapstructure:"table"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// ServerStore reads and writes server.Snapshot rows keyed by server key.
type ServerStore struct {
	pool  pool
	table string
}

// NewServerStore connects a pool for cfg.
func NewServerStore(ctx context.Context, cfg Config) (*ServerStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("store.dsn is required")
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
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &ServerStore{pool: p, table: table}, nil
}

// NewServerStoreWithPool wraps an existing pool, mainly for tests.
func NewServerStoreWithPool(p pool, table string) (*ServerStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	t, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &ServerStore{pool: p, table: t}, nil
}

func tableName(t string) (string, error) {
	if t == "" {
		t = defaultTable
	}
	if !validTableName.MatchString(t) {
		return "", fmt.Errorf("invalid table name %q", t)
	}
	return t, nil
}

// Close releases the pool.
func (s *ServerStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the snapshot table if it does not exist.
func (s *ServerStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	server_key TEXT PRIMARY KEY,
	snapshot   JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create %s: %w", s.table, err)
	}
	return nil
}

// Save upserts snap under its key.
func (s *ServerStore) Save(ctx context.Context, snap server.Snapshot) error {
	if snap.Key == "" {
		return fmt.Errorf("snapshot key is required")
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot %s: %w", snap.Key, err)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (server_key, snapshot, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (server_key) DO UPDATE
SET snapshot = EXCLUDED.snapshot, updated_at = EXCLUDED.updated_at`, s.table)
	if _, err := s.pool.Exec(ctx, query, snap.Key, payload); err != nil {
		return fmt.Errorf("upsert snapshot %s: %w", snap.Key, err)
	}
	return nil
}

// Load returns the snapshot stored under key, or ErrNotFound.
func (s *ServerStore) Load(ctx context.Context, key string) (server.Snapshot, error) {
	var raw []byte
	query := fmt.Sprintf(`SELECT snapshot FROM %s WHERE server_key = $1`, s.table)
	if err := s.pool.QueryRow(ctx, query, key).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return server.Snapshot{}, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return server.Snapshot{}, fmt.Errorf("load snapshot %s: %w", key, err)
	}
	var snap server.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return server.Snapshot{}, fmt.Errorf("decode snapshot %s: %w", key, err)
	}
	return snap, nil
}

// List returns every stored snapshot ordered by key.
func (s *ServerStore) List(ctx context.Context) ([]server.Snapshot, error) {
	query := fmt.Sprintf(`SELECT snapshot FROM %s ORDER BY server_key`, s.table)
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()
	var out []server.Snapshot
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		var snap server.Snapshot
		if err := json.Unmarshal(raw, &snap); err != nil {
			return nil, fmt.Errorf("decode snapshot: %w", err)
		}
		out = append(out, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	return out, nil
}

// Delete removes the snapshot under key, or returns ErrNotFound.
func (s *ServerStore) Delete(ctx context.Context, key string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE server_key = $1`, s.table)
	tag, err := s.pool.Exec(ctx, query, key)
	if err != nil {
		return fmt.Errorf("delete snapshot %s: %w", key, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return nil
}
