// Package sqlitestore provides a file-backed cache backend for single-node
// deployments that need the cache to survive restarts.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/glebarez/go-sqlite"

	"github.com/geosvc/arcproxy/internal/cache"
	"github.com/geosvc/arcproxy/internal/config"
	"github.com/geosvc/arcproxy/internal/observability"
)

func init() {
	cache.Register("sqlite", func(ctx context.Context, cfg config.Config) (cache.Store, error) {
		return New(ctx, cfg.SQLitePath)
	})
}

type Store struct {
	db *sql.DB
	// sqlite allows a single writer; serialize writes instead of relying
	// on busy timeouts
	writeMu sync.Mutex
	now     func() time.Time
}

// New opens (or creates) the database at path. An empty path opens a shared
// in-memory database, which is useful in tests.
func New(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		path = "file::memory:?cache=shared"
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite open %q: %w", path, err)
	}

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS cache (
			key TEXT PRIMARY KEY,
			expires INTEGER,
			stored_at INTEGER,
			val BLOB
		)`,
		"CREATE INDEX IF NOT EXISTS expires_idx ON cache (expires)",
		"PRAGMA journal_mode=WAL",
	}
	for _, q := range stmts {
		if _, err := db.ExecContext(ctx, q); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite init: %w", err)
		}
	}

	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	start := time.Now()
	var expires int64
	var val []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT expires, val FROM cache WHERE key = ?", key).Scan(&expires, &val)
	observability.ObserveCacheOp("get", ignoreNoRows(err), time.Since(start).Seconds())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("sqlite get %q: %w", key, err)
	}
	if expires > 0 && s.now().After(time.Unix(expires, 0)) {
		s.purge(ctx, key)
		return nil, false, nil
	}
	return val, true, nil
}

func (s *Store) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	start := time.Now()
	var expires int64
	if ttl > 0 {
		expires = s.now().Add(ttl).Unix()
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO cache (key, expires, stored_at, val) VALUES (?, ?, ?, ?)",
		key, expires, s.now().Unix(), val)
	observability.ObserveCacheOp("set", err, time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("sqlite set %q: %w", key, err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlite ping: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("sqlite close: %w", err)
	}
	return nil
}

func (s *Store) purge(ctx context.Context, key string) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, _ = s.db.ExecContext(ctx, "DELETE FROM cache WHERE key = ?", key)
}

func ignoreNoRows(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	return err
}
