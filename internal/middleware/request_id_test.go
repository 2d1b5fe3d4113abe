package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRequestIDGenerated(t *testing.T) {
	var seenID string
	handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenID = GetRequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api/alarms", nil))

	if seenID == "" {
		t.Fatal("expected a generated request ID in the context")
	}
	if got := rec.Header().Get(RequestIDHeader); got != seenID {
		t.Errorf("response header %q does not match context ID %q", got, seenID)
	}
}

func TestRequestIDFromClientIsKept(t *testing.T) {
	handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := GetRequestID(r.Context()); got != "trace-42" {
			t.Errorf("context ID = %q, want trace-42", got)
		}
	}))

	req := httptest.NewRequest("POST", "/webhook/alarm/src-1", nil)
	req.Header.Set(RequestIDHeader, "trace-42")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get(RequestIDHeader); got != "trace-42" {
		t.Errorf("response header = %q, want trace-42", got)
	}
}

func TestGetRequestIDWithoutMiddleware(t *testing.T) {
	r := httptest.NewRequest("GET", "/health", nil)
	if got := GetRequestID(r.Context()); got != "" {
		t.Errorf("expected empty ID, got %q", got)
	}
}

func TestCORSReflectsOrigin(t *testing.T) {
	handler := NewCORSMiddleware().Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/api/alarms", nil)
	req.Header.Set("Origin", "https://noc.example.com")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://noc.example.com" {
		t.Errorf("allow-origin = %q", got)
	}
}

func TestCORSRestrictedOrigins(t *testing.T) {
	handler := NewCORSMiddleware("https://noc.example.com").Wrap(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest("GET", "/api/alarms", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("disallowed origin must get no CORS headers, got %q", got)
	}
}

func TestCORSPreflightShortCircuits(t *testing.T) {
	called := false
	handler := NewCORSMiddleware().Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodOptions, "/api/alarms", nil)
	req.Header.Set("Origin", "https://noc.example.com")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("preflight status = %d, want 200", rec.Code)
	}
	if called {
		t.Error("preflight must not reach the next handler")
	}
}
