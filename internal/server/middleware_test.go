package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestInstrument_AssignsRequestID(t *testing.T) {
	var sawID string
	h := Instrument(discardLog())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawID = w.Header().Get("X-Request-ID")
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/features", nil))

	if rec.Code != http.StatusTeapot {
		t.Fatalf("status got %d want %d", rec.Code, http.StatusTeapot)
	}
	if sawID == "" {
		t.Fatalf("a request without an id must be assigned one")
	}
	if got := rec.Header().Get("X-Request-ID"); got != sawID {
		t.Fatalf("response id got %q want %q", got, sawID)
	}
}

func TestInstrument_PropagatesCallerRequestID(t *testing.T) {
	h := Instrument(discardLog())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/features", nil)
	req.Header.Set("X-Request-ID", "caller-supplied")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-ID"); got != "caller-supplied" {
		t.Fatalf("caller id must be echoed, got %q", got)
	}
}

func TestRecover_ConvertsPanicTo500(t *testing.T) {
	h := Recover(discardLog())(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		panic("handler blew up")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/features", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status got %d want 500", rec.Code)
	}
}

func TestCORS_Preflight(t *testing.T) {
	h := CORS()(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		t.Fatalf("preflight must not reach the handler")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/features", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status got %d want 204", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Methods"); got != http.MethodGet {
		t.Fatalf("allowed methods got %q want GET only", got)
	}
}

func TestCORS_PassThrough(t *testing.T) {
	called := false
	h := CORS()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/features", nil))
	if !called {
		t.Fatalf("GET must reach the handler")
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("allow-origin got %q", got)
	}
}
