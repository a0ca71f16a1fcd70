package cache_test

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/geosvc/arcproxy/internal/cache"
	"github.com/geosvc/arcproxy/internal/config"

	_ "github.com/geosvc/arcproxy/internal/cache/memstore"
)

func TestOpen_FallbackToMemory(t *testing.T) {
	log := zerolog.New(io.Discard)
	cfg := config.FromEnv()
	cfg.CacheProvider = "totally-unknown"

	s, err := cache.Open(context.Background(), cfg, &log)
	if err != nil || s == nil {
		t.Fatalf("expected fallback to memory, got err=%v s=%v", err, s)
	}
	t.Cleanup(func() { _ = s.Close() })
}

func TestEntryCodec(t *testing.T) {
	in := &cache.Entry{
		Status: 200,
		Header: http.Header{"Content-Type": {"application/json; charset=utf-8"}},
		Body:   []byte(`{"features":[]}`),
	}

	b, err := cache.EncodeEntry(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := cache.DecodeEntry(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Status != in.Status {
		t.Fatalf("status=%d want %d", out.Status, in.Status)
	}
	if got := out.Header.Get("Content-Type"); got != "application/json; charset=utf-8" {
		t.Fatalf("content-type=%q", got)
	}
	if string(out.Body) != string(in.Body) {
		t.Fatalf("body=%q want %q", out.Body, in.Body)
	}
}

func TestDecodeEntry_Garbage(t *testing.T) {
	if _, err := cache.DecodeEntry([]byte("not json")); err == nil {
		t.Fatal("expected decode error")
	}
}

type slowStore struct{}

func (slowStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case <-time.After(5 * time.Second):
		return nil, false, nil
	}
}

func (slowStore) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(5 * time.Second):
		return nil
	}
}

func (slowStore) Ping(ctx context.Context) error { return nil }
func (slowStore) Close() error                   { return nil }

func TestWithOpTimeout_BoundsSlowBackend(t *testing.T) {
	s := cache.WithOpTimeout(slowStore{}, 20*time.Millisecond)

	start := time.Now()
	_, _, err := s.Get(context.Background(), "k")
	if err == nil {
		t.Fatal("expected deadline error from slow Get")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("Get took %v; op timeout not applied", elapsed)
	}

	if err := s.Set(context.Background(), "k", []byte("v"), time.Minute); err == nil {
		t.Fatal("expected deadline error from slow Set")
	}
}

func TestWithOpTimeout_ZeroIsPassthrough(t *testing.T) {
	inner := slowStore{}
	if got := cache.WithOpTimeout(inner, 0); got != cache.Store(inner) {
		t.Fatal("zero timeout should return the inner store unchanged")
	}
}
