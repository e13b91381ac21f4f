// Package middleware provides HTTP middleware for the ApplyFlow API.
package middleware

import (
	"net/http"
	"regexp"
	"time"

	"github.com/R3E-Network/applyflow/internal/logging"
)

// TraceHeader carries the request trace id in both directions.
const TraceHeader = "X-Trace-ID"

// traceIDPattern limits client-supplied ids to what is safe to echo in a
// header and a log line.
var traceIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)

// TracingMiddleware gives each request a trace id and writes the access log
// line once the request completes.
type TracingMiddleware struct {
	logger *logging.Logger
}

func NewTracingMiddleware(logger *logging.Logger) *TracingMiddleware {
	return &TracingMiddleware{logger: logger}
}

// Handler adopts a well-formed incoming X-Trace-ID or mints a new one.
func (m *TracingMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get(TraceHeader)
		if !traceIDPattern.MatchString(traceID) {
			traceID = logging.NewTraceID()
		}
		w.Header().Set(TraceHeader, traceID)

		ctx := logging.WithTraceID(r.Context(), traceID)
		rec := recordResponse(w)
		began := time.Now()

		next.ServeHTTP(rec, r.WithContext(ctx))

		m.logger.LogRequest(ctx, r.Method, r.URL.Path, rec.Status(), time.Since(began))
	})
}
