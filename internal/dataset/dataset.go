// Package dataset maps inbound request paths to the fixed set of upstream
// feature-service endpoints and fills in kind-appropriate query defaults.
package dataset

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/geosvc/arcproxy/internal/config"
)

type Kind string

const (
	Flood Kind = "flood"
	Water Kind = "water"
)

// Default serves the root path and any unrecognized path. The first
// deployment exposed only the flood layer at "/", so flood stays the
// fallback for compatibility.
const Default = Flood

func Kinds() []Kind { return []Kind{Flood, Water} }

// FromPath selects the dataset kind for an inbound path. Trailing slashes
// are trimmed and the final segment is matched case-insensitively against
// the known kinds; everything else falls back to Default.
func FromPath(p string) Kind {
	p = strings.TrimRight(p, "/")
	if i := strings.LastIndex(p, "/"); i >= 0 {
		p = p[i+1:]
	}
	switch strings.ToLower(p) {
	case string(Water):
		return Water
	case string(Flood):
		return Flood
	default:
		return Default
	}
}

// Defaults returns the parameters filled in when the client omits them.
// Inbound values always win; only the result cap varies by kind.
func Defaults(k Kind) map[string]string {
	m := map[string]string{
		"f":                 "json",
		"returnGeometry":    "true",
		"outFields":         "*",
		"where":             "1=1",
		"resultRecordCount": "2000",
	}
	if k == Water {
		m["resultRecordCount"] = "1000"
	}
	return m
}

// Table holds the per-kind upstream endpoints, built once from configuration.
type Table struct {
	upstreams map[Kind]string
}

func NewTable(cfg config.Config) Table {
	return Table{upstreams: map[Kind]string{
		Flood: cfg.FloodUpstreamURL,
		Water: cfg.WaterUpstreamURL,
	}}
}

func (t Table) UpstreamFor(k Kind) string { return t.upstreams[k] }

// Resolve builds the fully resolved upstream URL: the kind's endpoint plus
// the inbound query with defaults applied only where a parameter is absent.
// Encoding sorts parameters, so inbound order never fragments the cache key.
func (t Table) Resolve(k Kind, inbound url.Values) (string, error) {
	base := t.upstreams[k]
	if base == "" {
		return "", fmt.Errorf("no upstream configured for dataset %q", k)
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse upstream url for dataset %q: %w", k, err)
	}

	merged := url.Values{}
	for key, vals := range inbound {
		merged[key] = vals
	}
	for key, def := range Defaults(k) {
		if _, ok := merged[key]; !ok {
			merged.Set(key, def)
		}
	}

	u.RawQuery = merged.Encode()
	return u.String(), nil
}
