// Package httpclient configures the HTTP client used to reach the ArcGIS upstreams.
package httpclient

import (
	"net"
	"net/http"
	"time"
)

// NewOutbound builds the shared client for upstream fetches. The pool is
// sized for a small, fixed set of upstream hosts. The overall attempt
// deadline is enforced per request via context, so the client itself
// carries no Timeout.
func NewOutbound() *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:          64,
		MaxIdleConnsPerHost:   32,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{
		Transport: transport,
	}
}
