package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/nstolbov/zuluview/internal/logger"
	"github.com/nstolbov/zuluview/internal/observability"
)

// statusWriter captures the response status for logging and metrics.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// Instrument assigns or propagates the request id, serves the request with
// the id on the context, then records the http metrics and an access log
// line with the observed status and duration. Handlers do not record their
// own request metrics.
func Instrument(l *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			reqID := r.Header.Get("X-Request-ID")
			if reqID == "" {
				reqID = logger.NewID()
			}
			w.Header().Set("X-Request-ID", reqID)

			ctx := logger.WithRequestID(r.Context(), reqID)
			ctx = logger.WithComponent(ctx, "http")

			sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
			next.ServeHTTP(sw, r.WithContext(ctx))

			elapsed := time.Since(start)
			observability.ObserveHTTP(r.Method, r.URL.Path, sw.code, elapsed.Seconds())
			l.LogAttrs(ctx, slog.LevelDebug, "http request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", sw.code),
				slog.Duration("duration", elapsed),
			)
		}
		return http.HandlerFunc(fn)
	}
}

// Recover turns a handler panic into a 500 so one bad request cannot take
// down the listener goroutine.
func Recover(l *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					l.Error("panic in handler",
						"method", r.Method,
						"path", r.URL.Path,
						"err", rec)
					http.Error(w, "internal server error", http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		}
		return http.HandlerFunc(fn)
	}
}

// CORS lets browser-hosted map clients call the gateway. The surface is
// read-only, so preflights are answered here and only GET is advertised.
func CORS() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Vary", "Origin")
			if r.Method == http.MethodOptions {
				w.Header().Set("Access-Control-Allow-Methods", http.MethodGet)
				w.Header().Set("Access-Control-Allow-Headers", "X-Request-ID")
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		}
		return http.HandlerFunc(fn)
	}
}
