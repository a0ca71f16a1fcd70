package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	mylog "github.com/geosvc/arcproxy/internal/logger"
)

func TestLogging_AssignsRequestID(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf)

	h := Logging(log, func(*http.Request) string { return "/flood" })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			l := mylog.FromContext(r.Context(), &log)
			l.Info().Msg("inner")
			w.WriteHeader(http.StatusTeapot)
		}))

	req := httptest.NewRequest(http.MethodGet, "/flood?f=json", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Header().Get("X-Request-ID") == "" {
		t.Fatal("generated request id should be echoed to the client")
	}
	out := buf.String()
	if !strings.Contains(out, `"status":418`) {
		t.Fatalf("access log missing status: %s", out)
	}
	if !strings.Contains(out, `"request_id"`) {
		t.Fatalf("inner log missing request_id: %s", out)
	}
}

func TestLogging_KeepsInboundRequestID(t *testing.T) {
	log := zerolog.New(bytes.NewBuffer(nil))

	h := Logging(log, func(*http.Request) string { return "/flood" })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/flood", nil)
	req.Header.Set("X-Request-ID", "client-supplied")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if got := rr.Header().Get("X-Request-ID"); got != "" {
		t.Fatalf("X-Request-ID=%q; inbound ids are not re-echoed", got)
	}
}

func TestRecover_PanicBecomesInternalError(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf)

	h := Recover(log)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	req := httptest.NewRequest(http.MethodGet, "/flood", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d want 500", rr.Code)
	}
	if !strings.Contains(buf.String(), "panic recovered") {
		t.Fatalf("panic not logged: %s", buf.String())
	}
}
