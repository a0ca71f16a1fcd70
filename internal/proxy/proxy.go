// Package proxy implements the request handler: resolve the upstream URL
// for the requested dataset, serve from the edge cache when possible, and
// otherwise fetch, normalize and conditionally cache the upstream response.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/geosvc/arcproxy/internal/cache"
	"github.com/geosvc/arcproxy/internal/cache/keys"
	"github.com/geosvc/arcproxy/internal/config"
	"github.com/geosvc/arcproxy/internal/dataset"
	"github.com/geosvc/arcproxy/internal/logger"
	"github.com/geosvc/arcproxy/internal/observability"
	"github.com/geosvc/arcproxy/internal/tasks"
)

const upstreamErrorBody = `{"error":"upstream_timeout_or_network"}`

type Handler struct {
	log   *slog.Logger
	cfg   config.Config
	table dataset.Table
	http  *http.Client
	store cache.Store
	tasks *tasks.Runner
}

func New(log *slog.Logger, cfg config.Config, table dataset.Table, client *http.Client, store cache.Store, runner *tasks.Runner) *Handler {
	return &Handler{
		log:   log,
		cfg:   cfg,
		table: table,
		http:  client,
		store: store,
		tasks: runner,
	}
}

// ServeHTTP handles a single proxied request. OPTIONS never reaches this
// handler; the CORS middleware acknowledges preflights before routing.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET, OPTIONS")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	kind := dataset.FromPath(r.URL.Path)
	ctx := logger.WithDataset(r.Context(), string(kind))

	resolved, err := h.table.Resolve(kind, r.URL.Query())
	if err != nil {
		h.log.ErrorContext(ctx, "resolve upstream url failed", "err", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	key := keys.ForURL(resolved)

	if e := h.lookup(ctx, key); e != nil {
		observability.IncCacheHit(string(kind))
		h.writeEntry(w, e, "arcproxy; hit")
		return
	}
	observability.IncCacheMiss(string(kind))

	entry, err := h.fetch(ctx, kind, resolved)
	if err != nil {
		reason := "network"
		if errors.Is(err, context.DeadlineExceeded) {
			reason = "timeout"
		}
		observability.IncUpstreamFailure(string(kind), reason)
		h.log.WarnContext(ctx, "upstream fetch failed", "url", resolved, "reason", reason, "err", err)

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusGatewayTimeout)
		_, _ = io.WriteString(w, upstreamErrorBody)
		return
	}

	cacheStatus := "arcproxy; fwd=miss"
	if entry.Status >= 200 && entry.Status < 300 {
		cacheStatus = "arcproxy; fwd=miss; stored"
		h.scheduleStore(key, entry, h.cfg.TTLFor(string(kind)))
	} else {
		// upstream application errors pass through but never populate the cache
		observability.IncCacheBypass(string(kind))
	}
	h.writeEntry(w, entry, cacheStatus)
}

// lookup treats every store failure as a miss: a broken cache degrades to
// plain proxying instead of failing the request.
func (h *Handler) lookup(ctx context.Context, key string) *cache.Entry {
	b, ok, err := h.store.Get(ctx, key)
	if err != nil {
		h.log.WarnContext(ctx, "cache lookup failed", "key", key, "err", err)
		return nil
	}
	if !ok {
		return nil
	}
	e, err := cache.DecodeEntry(b)
	if err != nil {
		h.log.WarnContext(ctx, "corrupt cache entry", "key", key, "err", err)
		return nil
	}
	return e
}

// fetch performs the single bounded upstream attempt and normalizes the
// response into a cacheable snapshot. The timeout context is released on
// every exit path.
func (h *Handler) fetch(ctx context.Context, kind dataset.Kind, rawURL string) (*cache.Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, h.cfg.UpstreamTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := h.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstream fetch: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	// buffer the whole body so it can be returned and cached independently
	body, err := io.ReadAll(resp.Body)
	observability.ObserveUpstreamLatency(string(kind), time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("read upstream body: %w", err)
	}

	ttlSecs := int64(h.cfg.TTLFor(string(kind)) / time.Second)
	hdr := http.Header{}
	hdr.Set("Content-Type", "application/json; charset=utf-8")
	hdr.Set("Cache-Control", fmt.Sprintf("public, max-age=%d, s-maxage=%d, stale-while-revalidate=60", ttlSecs, ttlSecs))

	return &cache.Entry{Status: resp.StatusCode, Header: hdr, Body: body}, nil
}

// scheduleStore hands the cache write to the task runner so the response is
// never delayed by the store. Failures are logged and swallowed; the next
// identical request simply misses again.
func (h *Handler) scheduleStore(key string, e *cache.Entry, ttl time.Duration) {
	h.tasks.Go("cache_write", func(taskCtx context.Context) {
		b, err := cache.EncodeEntry(e)
		if err != nil {
			h.log.Error("encode cache entry failed", "key", key, "err", err)
			return
		}
		if err := h.store.Set(taskCtx, key, b, ttl); err != nil {
			h.log.Warn("cache write failed", "key", key, "err", err)
		}
	})
}

// writeEntry emits a stored or freshly fetched snapshot. CORS headers are
// already on the ResponseWriter; snapshots never carry them.
func (h *Handler) writeEntry(w http.ResponseWriter, e *cache.Entry, cacheStatus string) {
	for k, vals := range e.Header {
		for i, v := range vals {
			if i == 0 {
				w.Header().Set(k, v)
			} else {
				w.Header().Add(k, v)
			}
		}
	}
	w.Header().Set("Cache-Status", cacheStatus)
	w.WriteHeader(e.Status)
	_, _ = w.Write(e.Body)
}
