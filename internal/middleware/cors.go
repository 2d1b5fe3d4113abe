package middleware

import "net/http"

// CORSMiddleware sets cross-origin headers for the NOC console. With no
// configured origins every origin is reflected back, which is fine for an
// API that still requires a bearer token.
type CORSMiddleware struct {
	allowedOrigins map[string]struct{}
}

// NewCORSMiddleware creates a CORS middleware restricted to the given
// origins; with none given, all origins are allowed
func NewCORSMiddleware(allowedOrigins ...string) *CORSMiddleware {
	m := &CORSMiddleware{}
	if len(allowedOrigins) > 0 {
		m.allowedOrigins = make(map[string]struct{}, len(allowedOrigins))
		for _, origin := range allowedOrigins {
			m.allowedOrigins[origin] = struct{}{}
		}
	}
	return m
}

// Wrap adds CORS headers and answers preflight requests
func (m *CORSMiddleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" && m.originAllowed(origin) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Max-Age", "86400")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (m *CORSMiddleware) originAllowed(origin string) bool {
	if m.allowedOrigins == nil {
		return true
	}
	if _, ok := m.allowedOrigins["*"]; ok {
		return true
	}
	_, ok := m.allowedOrigins[origin]
	return ok
}
