// Package memstore provides the in-process cache backend. It is the default
// provider and the fallback when no external store is configured.
package memstore

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/geosvc/arcproxy/internal/cache"
	"github.com/geosvc/arcproxy/internal/config"
	"github.com/geosvc/arcproxy/internal/observability"
)

func init() {
	cache.Register("memory", func(_ context.Context, _ config.Config) (cache.Store, error) {
		return New(DefaultCapacity)
	})
}

// DefaultCapacity bounds the number of cached responses. Entries are whole
// upstream payloads, so the cap is deliberately modest.
const DefaultCapacity = 4096

type entry struct {
	val     []byte
	expires time.Time
}

type Store struct {
	lru *lru.Cache[string, entry]
	now func() time.Time
}

func New(capacity int) (*Store, error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	l, err := lru.New[string, entry](capacity)
	if err != nil {
		return nil, err
	}
	return &Store{lru: l, now: time.Now}, nil
}

func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	start := time.Now()
	e, ok := s.lru.Get(key)
	observability.ObserveCacheOp("get", nil, time.Since(start).Seconds())
	if !ok {
		return nil, false, nil
	}
	if !e.expires.IsZero() && s.now().After(e.expires) {
		s.lru.Remove(key)
		return nil, false, nil
	}
	return e.val, true, nil
}

func (s *Store) Set(_ context.Context, key string, val []byte, ttl time.Duration) error {
	start := time.Now()
	var exp time.Time
	if ttl > 0 {
		exp = s.now().Add(ttl)
	}
	// copy so later mutation of the caller's slice cannot change the snapshot
	cp := make([]byte, len(val))
	copy(cp, val)
	s.lru.Add(key, entry{val: cp, expires: exp})
	observability.ObserveCacheOp("set", nil, time.Since(start).Seconds())
	return nil
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error {
	s.lru.Purge()
	return nil
}
