package middleware

import "net/http"

// statusRecorder tracks what a handler has sent. Middlewares share one
// recorder per request: wrapping an existing recorder returns it unchanged.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func recordResponse(w http.ResponseWriter) *statusRecorder {
	if rec, ok := w.(*statusRecorder); ok {
		return rec
	}
	return &statusRecorder{ResponseWriter: w}
}

func (rec *statusRecorder) WriteHeader(code int) {
	if rec.status != 0 {
		return
	}
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

func (rec *statusRecorder) Write(b []byte) (int, error) {
	if rec.status == 0 {
		rec.WriteHeader(http.StatusOK)
	}
	n, err := rec.ResponseWriter.Write(b)
	rec.bytes += int64(n)
	return n, err
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (rec *statusRecorder) Unwrap() http.ResponseWriter {
	return rec.ResponseWriter
}

// Committed reports whether the status line has been sent.
func (rec *statusRecorder) Committed() bool {
	return rec.status != 0
}

// Status is the status sent, or 200 when the handler sent nothing, which is
// what net/http answers in that case.
func (rec *statusRecorder) Status() int {
	if rec.status == 0 {
		return http.StatusOK
	}
	return rec.status
}
