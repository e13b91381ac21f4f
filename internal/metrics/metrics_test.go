package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordAuthResolution(t *testing.T) {
	m := New(false)

	m.RecordAuthResolution("bearer", "resolved")
	m.RecordAuthResolution("bearer", "resolved")
	m.RecordAuthResolution("", "skipped")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.authResolutions.WithLabelValues("bearer", "resolved")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.authResolutions.WithLabelValues("none", "skipped")))
}

func TestRecordStoreOperation(t *testing.T) {
	m := New(false)

	m.RecordStoreOperation("postgres", "list", 2*time.Millisecond, nil)
	m.RecordStoreOperation("postgres", "list", 0, errors.New("boom"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.storeOperations.WithLabelValues("postgres", "list", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.storeOperations.WithLabelValues("postgres", "list", "error")))
}

func TestHandler_Exposition(t *testing.T) {
	m := New(true)
	m.RecordHTTPRequest("applyflow", http.MethodGet, "/applications", "200", 10*time.Millisecond)

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `applyflow_http_requests_total{method="GET",path="/applications",service="applyflow",status="200"} 1`)
	assert.Contains(t, rr.Body.String(), "go_goroutines")
}
