package core

import (
	"net/http"
	"time"
)

// ResponseWriter wraps http.ResponseWriter to capture the status code
// written by downstream handlers.
type ResponseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

// WrapResponseWriter returns a status-capturing writer around w.
func WrapResponseWriter(w http.ResponseWriter) *ResponseWriter {
	return &ResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *ResponseWriter) WriteHeader(code int) {
	if !rw.written {
		rw.statusCode = code
		rw.written = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

func (rw *ResponseWriter) Write(b []byte) (int, error) {
	if !rw.written {
		rw.statusCode = http.StatusOK
		rw.written = true
	}
	return rw.ResponseWriter.Write(b)
}

// StatusCode returns the captured response status code.
func (rw *ResponseWriter) StatusCode() int {
	return rw.statusCode
}

// LoggingMiddleware logs HTTP requests with structured logging.
// In development mode it logs all requests; in production only non-2xx
// responses and slow requests (>1s).
func LoggingMiddleware(logger Logger, devMode bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := WrapResponseWriter(w)

			next.ServeHTTP(wrapped, r)

			duration := time.Since(start)
			shouldLog := devMode ||
				wrapped.statusCode >= 400 ||
				duration > time.Second

			if !shouldLog || logger == nil {
				return
			}

			logData := map[string]interface{}{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      wrapped.statusCode,
				"duration_ms": duration.Milliseconds(),
				"remote_addr": r.RemoteAddr,
			}
			if r.URL.RawQuery != "" {
				logData["query"] = r.URL.RawQuery
			}

			switch {
			case wrapped.statusCode >= 500:
				logger.ErrorWithContext(r.Context(), "HTTP request error", logData)
			case wrapped.statusCode >= 400:
				logger.WarnWithContext(r.Context(), "HTTP request client error", logData)
			case duration > time.Second:
				logger.WarnWithContext(r.Context(), "HTTP request slow", logData)
			default:
				logger.InfoWithContext(r.Context(), "HTTP request", logData)
			}
		})
	}
}
