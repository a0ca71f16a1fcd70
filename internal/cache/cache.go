// Package cache defines the storage capability the proxy reads and writes
// response snapshots through, plus the provider registry that selects a
// backend at startup.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/geosvc/arcproxy/internal/config"
)

// Store holds opaque values under string keys with a per-entry TTL.
// Implementations must treat values as immutable after Set.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	Ping(ctx context.Context) error
	Close() error
}

// Entry is the response snapshot stored for a resolved upstream URL.
type Entry struct {
	Status int         `json:"status"`
	Header http.Header `json:"header"`
	Body   []byte      `json:"body"`
}

func EncodeEntry(e *Entry) ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode cache entry: %w", err)
	}
	return b, nil
}

func DecodeEntry(b []byte) (*Entry, error) {
	var e Entry
	if err := json.Unmarshal(b, &e); err != nil {
		return nil, fmt.Errorf("decode cache entry: %w", err)
	}
	return &e, nil
}

type Factory func(ctx context.Context, cfg config.Config) (Store, error)

var reg = map[string]Factory{}

func Register(name string, f Factory) {
	reg[name] = f
}

// Open builds the store named by cfg.CacheProvider. Unknown names fall back
// to the memory provider so a typo degrades service instead of killing it.
func Open(ctx context.Context, cfg config.Config, log *zerolog.Logger) (Store, error) {
	if f, ok := reg[cfg.CacheProvider]; ok {
		return f(ctx, cfg)
	}
	if f, ok := reg["memory"]; ok {
		log.Warn().Str("provider", cfg.CacheProvider).Msg("unknown cache provider; falling back to memory")
		return f(ctx, cfg)
	}
	return nil, fmt.Errorf("no factory for cache provider %q and no memory fallback registered", cfg.CacheProvider)
}

type opTimeoutStore struct {
	inner Store
	d     time.Duration
}

// WithOpTimeout bounds every store operation so a slow backend can never
// hold up request handling or shutdown.
func WithOpTimeout(s Store, d time.Duration) Store {
	if d <= 0 {
		return s
	}
	return &opTimeoutStore{inner: s, d: d}
}

func (s *opTimeoutStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.d)
	defer cancel()
	return s.inner.Get(ctx, key)
}

func (s *opTimeoutStore) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, s.d)
	defer cancel()
	return s.inner.Set(ctx, key, val, ttl)
}

func (s *opTimeoutStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.d)
	defer cancel()
	return s.inner.Ping(ctx)
}

func (s *opTimeoutStore) Close() error { return s.inner.Close() }
