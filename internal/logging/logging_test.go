package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithContext_AddsIDs(t *testing.T) {
	var buf bytes.Buffer
	logger := New("applyflow", "info", "json")
	logger.SetOutput(&buf)

	ctx := WithUserID(WithTraceID(context.Background(), "trace-1"), "user-1")
	logger.WithContext(ctx).Info("hello")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "applyflow", entry["service"])
	assert.Equal(t, "trace-1", entry["trace_id"])
	assert.Equal(t, "user-1", entry["user_id"])
}

func TestLogRequest_LevelByStatus(t *testing.T) {
	cases := map[int]string{
		http.StatusOK:                  "info",
		http.StatusNotFound:            "warning",
		http.StatusInternalServerError: "error",
	}
	for status, level := range cases {
		var buf bytes.Buffer
		logger := New("applyflow", "debug", "json")
		logger.SetOutput(&buf)

		logger.LogRequest(context.Background(), http.MethodGet, "/applications", status, 5*time.Millisecond)

		var entry map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, level, entry["level"], "status %d", status)
		assert.EqualValues(t, status, entry["status"])
	}
}

func TestNew_UnknownLevelDefaultsToInfo(t *testing.T) {
	logger := New("applyflow", "chatty", "text")
	assert.Equal(t, "info", logger.GetLevel().String())
}

func TestGetTraceID_Empty(t *testing.T) {
	assert.Empty(t, GetTraceID(context.Background()))
	assert.Empty(t, GetUserID(context.Background()))
	assert.NotEqual(t, NewTraceID(), NewTraceID())
}
