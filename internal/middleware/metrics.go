package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/R3E-Network/applyflow/internal/metrics"
)

// unmatchedRoute labels requests no route claimed, keeping label
// cardinality bounded.
const unmatchedRoute = "unmatched"

// MetricsMiddleware records per-route request metrics. Install it with
// Router.Use so the matched route template can label the sample instead of
// the raw path, which would carry application ids.
func MetricsMiddleware(serviceName string, m *metrics.Metrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m.IncrementInFlight()
			defer m.DecrementInFlight()

			rec := recordResponse(w)
			began := time.Now()
			next.ServeHTTP(rec, r)

			m.RecordHTTPRequest(serviceName, r.Method, routeLabel(r), strconv.Itoa(rec.Status()), time.Since(began))
		})
	}
}

func routeLabel(r *http.Request) string {
	route := mux.CurrentRoute(r)
	if route == nil {
		return unmatchedRoute
	}
	tpl, err := route.GetPathTemplate()
	if err != nil {
		return unmatchedRoute
	}
	return tpl
}
