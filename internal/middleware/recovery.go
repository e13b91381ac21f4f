package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/R3E-Network/applyflow/internal/errors"
	"github.com/R3E-Network/applyflow/internal/httputil"
	"github.com/R3E-Network/applyflow/internal/logging"
)

// Recovery turns a handler panic into a 500 response. When the handler had
// already sent its status the response is left as is; the panic is still
// logged.
func Recovery(logger *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := recordResponse(w)
			defer func() {
				v := recover()
				if v == nil {
					return
				}
				if v == http.ErrAbortHandler {
					panic(v)
				}
				logger.WithContext(r.Context()).WithFields(map[string]interface{}{
					"panic":     v,
					"stack":     string(debug.Stack()),
					"path":      r.URL.Path,
					"committed": rec.Committed(),
				}).Error("Handler panicked")
				if !rec.Committed() {
					httputil.WriteServiceError(rec, errors.Internal("", nil))
				}
			}()
			next.ServeHTTP(rec, r)
		})
	}
}
