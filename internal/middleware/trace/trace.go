// Package trace times requests and reports them to the log and to the
// request duration histogram.
package trace

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"zerobudget/internal/log"
	"zerobudget/internal/metrics"
)

// unmatchedRoute labels requests no route matched, keeping the metric's
// cardinality bounded.
const unmatchedRoute = "unmatched"

// Middleware handles request timing and completion logging
type Middleware struct {
	extractIP func(*http.Request) string
	now       func() time.Time
}

func NewMiddleware(extractIP func(*http.Request) string) *Middleware {
	return &Middleware{extractIP: extractIP, now: time.Now}
}

// Middleware must run inside the chi router so the matched route pattern
// is known once the handler returns.
func (m *Middleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := m.now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := RoutePattern(r)
		duration := m.now().Sub(start)

		metrics.HTTPRequestDuration.
			WithLabelValues(r.Method, route, strconv.Itoa(status)).
			Observe(duration.Seconds())

		clientIP := ""
		if m.extractIP != nil {
			clientIP = m.extractIP(r)
		}
		log.LogHTTPEnd(r.Context(), r, route, status, duration.Milliseconds(), clientIP)
	})
}

// RoutePattern returns the chi pattern that served r, such as
// /api/accounts/{id}.
func RoutePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return unmatchedRoute
	}
	if pattern := rctx.RoutePattern(); pattern != "" {
		return pattern
	}
	return unmatchedRoute
}

// RequestID returns the id assigned by chi's RequestID middleware.
func RequestID(r *http.Request) string {
	return middleware.GetReqID(r.Context())
}
