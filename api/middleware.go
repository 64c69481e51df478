package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vepflow/vepflow/core"
)

// exchangeIDHeader carries the correlation id across service hops.
const exchangeIDHeader = "X-Exchange-ID"

// apiTokenHeader carries the shared intake token.
const apiTokenHeader = "X-API-Token"

// openPaths are reachable without a token.
var openPaths = map[string]struct{}{
	"/health":  {},
	"/metrics": {},
	"/docs":    {},
}

// TokenAuthMiddleware rejects requests without the shared token. An
// empty configured token disables auth entirely, which only makes sense
// outside production.
func TokenAuthMiddleware(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			if _, open := openPaths[r.URL.Path]; open {
				next.ServeHTTP(w, r)
				return
			}
			provided := r.Header.Get(apiTokenHeader)
			if subtle.ConstantTimeCompare([]byte(provided), []byte(token)) != 1 {
				writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "invalid or missing API token"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// HTTPMetrics records golden-signal observations per request.
type HTTPMetrics interface {
	RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration)
}

// ObservabilityMiddleware binds the exchange id from the request header
// (or a fresh one) into the context, echoes it on the response and
// records request metrics. metrics may be nil.
func ObservabilityMiddleware(metrics HTTPMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			exchangeID := r.Header.Get(exchangeIDHeader)
			if exchangeID == "" {
				exchangeID = uuid.New().String()
			}
			ctx := core.WithExchangeID(r.Context(), exchangeID)
			w.Header().Set(exchangeIDHeader, exchangeID)

			start := time.Now()
			wrapped := core.WrapResponseWriter(w)
			next.ServeHTTP(wrapped, r.WithContext(ctx))

			if metrics != nil {
				metrics.RecordHTTPRequest(r.Method, endpointLabel(r.URL.Path),
					wrapped.StatusCode(), time.Since(start))
			}
		})
	}
}

// endpointLabel collapses path parameters so metric cardinality stays
// bounded.
func endpointLabel(path string) string {
	if strings.HasPrefix(path, "/workflows/") && strings.HasSuffix(path, "/status") {
		return "/workflows/{exchange_id}/status"
	}
	return path
}
