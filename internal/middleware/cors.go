package middleware

import (
	"net/http"
	"strings"
)

// CORSPolicy decides which Access-Control-Allow-Origin value a response
// carries. The allow-list is parsed once at startup.
type CORSPolicy struct {
	origins  map[string]struct{}
	wildcard bool
}

func NewCORSPolicy(allowList string) CORSPolicy {
	p := CORSPolicy{origins: map[string]struct{}{}}
	for _, o := range strings.Split(allowList, ",") {
		o = strings.TrimSpace(o)
		if o == "" {
			continue
		}
		if o == "*" {
			p.wildcard = true
			continue
		}
		p.origins[o] = struct{}{}
	}
	return p
}

// AllowOriginFor returns the header value for a request origin. An exact
// allow-list match echoes the origin and wins over the wildcard; with no
// match the header is omitted entirely, which denies cross-origin reads
// without hiding the body from same-origin callers.
func (p CORSPolicy) AllowOriginFor(origin string) (string, bool) {
	if origin != "" {
		if _, ok := p.origins[origin]; ok {
			return origin, true
		}
	}
	if p.wildcard {
		return "*", true
	}
	return "", false
}

// Apply decorates a response's headers for the given request origin.
func (p CORSPolicy) Apply(h http.Header, origin string) {
	if v, ok := p.AllowOriginFor(origin); ok {
		h.Set("Access-Control-Allow-Origin", v)
	}
	h.Set("Access-Control-Allow-Methods", "GET,HEAD,OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Content-Type")
	h.Set("Vary", "Origin")
}

// CORS decorates every response and acknowledges preflights with an empty
// 204 before any routing or upstream work happens.
func CORS(p CORSPolicy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			p.Apply(w.Header(), r.Header.Get("Origin"))
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		}
		return http.HandlerFunc(fn)
	}
}
