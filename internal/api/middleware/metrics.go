package middleware

import (
	"net/http"
	"time"

	"github.com/ayo6706/wallet-ledger/internal/observability"
	"github.com/go-chi/chi/v5"
)

// unmatchedRoute labels requests that hit no route so scans of random paths
// cannot blow up label cardinality.
const unmatchedRoute = "unmatched"

// MetricsMiddleware records request durations by method, route pattern and status.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rw, r)

		observability.ObserveHTTP(r.Method, routePattern(r), rw.status, time.Since(start))
	})
}

func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if pattern := rc.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return unmatchedRoute
}
