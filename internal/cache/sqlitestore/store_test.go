package sqlitestore

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)

	s, err := New(ctx, filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSetGet_RoundTrip(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	if err := s.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, found, err := s.Get(ctx, "k")
	if err != nil || !found || string(got) != "v" {
		t.Fatalf("got=%q found=%v err=%v", got, found, err)
	}

	_, found, err = s.Get(ctx, "missing")
	if err != nil {
		t.Fatalf("Get missing: %v", err)
	}
	if found {
		t.Fatal("missing key reported as found")
	}
}

func TestOverwrite_ReplacesValue(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	if err := s.Set(ctx, "k", []byte("old"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Set(ctx, "k", []byte("new"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, found, err := s.Get(ctx, "k")
	if err != nil || !found || string(got) != "new" {
		t.Fatalf("got=%q found=%v err=%v", got, found, err)
	}
}

func TestExpiry_EntryPurgedAfterTTL(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	now := base
	s.now = func() time.Time { return now }

	if err := s.Set(ctx, "k", []byte("v"), 30*time.Second); err != nil {
		t.Fatalf("Set: %v", err)
	}

	if _, found, _ := s.Get(ctx, "k"); !found {
		t.Fatal("entry should be fresh")
	}

	now = base.Add(31 * time.Second)
	if _, found, _ := s.Get(ctx, "k"); found {
		t.Fatal("entry should have expired")
	}

	// lazy purge removed the row; rolling the clock back cannot revive it
	now = base
	if _, found, _ := s.Get(ctx, "k"); found {
		t.Fatal("expired entry should have been purged")
	}
}

func TestPersistence_SurvivesReopen(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	path := filepath.Join(t.TempDir(), "cache.db")

	s1, err := New(ctx, path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s1.Set(ctx, "k", []byte("v"), time.Hour); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s2, err := New(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { _ = s2.Close() })

	got, found, err := s2.Get(ctx, "k")
	if err != nil || !found || string(got) != "v" {
		t.Fatalf("after reopen got=%q found=%v err=%v", got, found, err)
	}
}

func TestPing(t *testing.T) {
	s := newStore(t)
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}
