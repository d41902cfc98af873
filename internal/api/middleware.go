package api

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
			"remote", r.RemoteAddr,
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// tokenAuth authenticates the UI sender by shared token. An unauthenticated
// sender gets a bare 404 with no body and no error detail. The health endpoint
// stays open.
func tokenAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" || r.URL.Path == "/health" {
				next.ServeHTTP(w, r)
				return
			}
			if subtle.ConstantTimeCompare([]byte(senderToken(r)), []byte(token)) == 1 {
				next.ServeHTTP(w, r)
				return
			}
			slog.Debug("unauthenticated sender dropped", "path", r.URL.Path, "remote", r.RemoteAddr)
			w.WriteHeader(http.StatusNotFound)
		})
	}
}

func senderToken(r *http.Request) string {
	if t := r.Header.Get("X-API-Token"); t != "" {
		return t
	}
	auth := r.Header.Get("Authorization")
	if rest, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return rest
	}
	// WebSocket clients cannot set headers from a browser; allow the token
	// as a query parameter on the events stream only.
	if r.URL.Path == "/api/v1/events" {
		return r.URL.Query().Get("token")
	}
	return ""
}
