package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is read once at process start and never mutated afterwards.
type Config struct {
	Addr     string
	LogLevel string

	AllowedOrigins string

	FloodUpstreamURL string
	WaterUpstreamURL string

	CacheTTL       time.Duration
	CacheTTLOvr    map[string]time.Duration
	CacheProvider  string
	RedisAddr      string
	SQLitePath     string
	CacheOpTimeout time.Duration

	UpstreamTimeout time.Duration

	MetricsEnabled bool
}

// DefaultTTLSeconds applies when CACHE_TTL_SECONDS is absent or unparsable.
const DefaultTTLSeconds = 3600

const (
	defaultFloodUpstream = "https://hazards.fema.gov/arcgis/rest/services/public/NFHL/MapServer/28/query"
	defaultWaterUpstream = "https://hydro.nationalmap.gov/arcgis/rest/services/nhd/MapServer/6/query"
)

func FromEnv() Config {
	ttlSeconds := getint("CACHE_TTL_SECONDS", DefaultTTLSeconds)
	if ttlSeconds <= 0 {
		ttlSeconds = DefaultTTLSeconds
	}

	return Config{
		Addr:     getenv("ADDR", ":8080"),
		LogLevel: getenv("LOG_LEVEL", "info"),

		AllowedOrigins: getenv("ALLOWED_ORIGINS", "*"),

		FloodUpstreamURL: getenv("FLOOD_UPSTREAM_URL", defaultFloodUpstream),
		WaterUpstreamURL: getenv("WATER_UPSTREAM_URL", defaultWaterUpstream),

		CacheTTL:       time.Duration(ttlSeconds) * time.Second,
		CacheTTLOvr:    parseTTLMap(getenv("CACHE_TTL_OVERRIDES", "")),
		CacheProvider:  getenv("CACHE_PROVIDER", "memory"),
		RedisAddr:      getenv("REDIS_ADDR", "localhost:6379"),
		SQLitePath:     getenv("SQLITE_PATH", "./arcproxy-cache.db"),
		CacheOpTimeout: getduration("CACHE_OP_TIMEOUT", 250*time.Millisecond),

		UpstreamTimeout: getduration("UPSTREAM_TIMEOUT", 8*time.Second),

		MetricsEnabled: getbool("METRICS_ENABLED", true),
	}
}

// TTLFor returns the cache TTL for a dataset kind, honoring per-kind overrides.
func (c Config) TTLFor(kind string) time.Duration {
	if kind != "" {
		if d, ok := c.CacheTTLOvr[kind]; ok {
			return d
		}
	}
	return c.CacheTTL
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// parse "flood=600,water=7200" into per-kind TTLs (values are seconds)
func parseTTLMap(s string) map[string]time.Duration {
	out := map[string]time.Duration{}
	s = strings.TrimSpace(s)
	if s == "" {
		return out
	}
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		k := strings.TrimSpace(kv[0])
		v := strings.TrimSpace(kv[1])
		if k == "" {
			continue
		}
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			out[k] = time.Duration(n) * time.Second
		}
	}
	return out
}
