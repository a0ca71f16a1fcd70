package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/geosvc/arcproxy/internal/cache"
	_ "github.com/geosvc/arcproxy/internal/cache/memstore"
	_ "github.com/geosvc/arcproxy/internal/cache/redisstore"
	_ "github.com/geosvc/arcproxy/internal/cache/sqlitestore"
	"github.com/geosvc/arcproxy/internal/config"
	"github.com/geosvc/arcproxy/internal/dataset"
	"github.com/geosvc/arcproxy/internal/httpclient"
	"github.com/geosvc/arcproxy/internal/logger"
	"github.com/geosvc/arcproxy/internal/observability"
	"github.com/geosvc/arcproxy/internal/proxy"
	"github.com/geosvc/arcproxy/internal/server"
	"github.com/geosvc/arcproxy/internal/tasks"
)

var Version = "dev"

func main() {
	os.Exit(run())
}

func envInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func run() int {
	// flag overrides for the most commonly tweaked knobs
	addrFlag := flag.String("addr", "", "listen address (overrides ADDR)")
	providerFlag := flag.String("cache-provider", "", "cache provider name (overrides CACHE_PROVIDER)")
	flag.Parse()

	cfg := config.FromEnv()
	if *addrFlag != "" {
		cfg.Addr = *addrFlag
	}
	if *providerFlag != "" {
		cfg.CacheProvider = strings.TrimSpace(*providerFlag)
	}

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   strings.ToLower(os.Getenv("LOG_CONSOLE")) == "true",
		SampleN:   envInt("LOG_SAMPLE_N", 0),
		Component: "arcproxy",
	}, os.Stdout)

	appLog := logger.NewSlog(&zl)

	observability.ExposeBuildInfo(Version)
	appLog.Info("starting arcproxy",
		"addr", cfg.Addr,
		"version", Version,
		"cache_provider", cfg.CacheProvider,
		"flood_upstream", cfg.FloodUpstreamURL,
		"water_upstream", cfg.WaterUpstreamURL)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := cache.Open(ctx, cfg, &zl)
	if err != nil {
		appLog.Error("cache store setup failed", "err", err)
		return 1
	}
	defer func() { _ = store.Close() }()
	store = cache.WithOpTimeout(store, cfg.CacheOpTimeout)

	runner := tasks.NewRunner(zl)
	handler := proxy.New(appLog, cfg, dataset.NewTable(cfg), httpclient.NewOutbound(), store, runner)

	if err := server.Run(ctx, cfg, zl, server.New(cfg, zl, handler, store)); err != nil {
		appLog.Error("server error", "err", err)
		return 1
	}

	// the listener is closed; finish pending cache writes before exiting
	drainCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := runner.Drain(drainCtx); err != nil {
		appLog.Warn("background cache writes not fully drained", "err", err)
	}

	appLog.Info("shutdown complete")
	return 0
}
