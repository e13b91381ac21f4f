// Package httputil holds small HTTP helpers shared by the API handlers and
// the store clients.
package httputil

import (
	"fmt"
	"io"
	"net/http"
)

// DefaultMaxBodyBytes bounds request bodies accepted by the API.
const DefaultMaxBodyBytes = 1 << 20 // 1 MiB

// ReadAllWithLimit reads at most limit bytes from r. truncated reports
// whether r held more data than limit.
func ReadAllWithLimit(r io.Reader, limit int64) ([]byte, bool, error) {
	if limit <= 0 {
		body, err := io.ReadAll(r)
		return body, false, err
	}

	body, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, false, err
	}
	if int64(len(body)) > limit {
		return body[:limit], true, nil
	}
	return body, false, nil
}

// ReadAllStrict reads r and fails when it holds more than limit bytes.
func ReadAllStrict(r io.Reader, limit int64) ([]byte, error) {
	body, truncated, err := ReadAllWithLimit(r, limit)
	if err != nil {
		return nil, err
	}
	if truncated {
		return nil, fmt.Errorf("body exceeds %d bytes", limit)
	}
	return body, nil
}

// ReadBody reads the request body, bounded by limit (DefaultMaxBodyBytes
// when limit <= 0).
func ReadBody(w http.ResponseWriter, r *http.Request, limit int64) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = DefaultMaxBodyBytes
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	defer r.Body.Close()
	return io.ReadAll(r.Body)
}
