package obslog

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taskforge/orchestrator/internal/requestid"
)

func TestNew_JSONFormatIncludesRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := New("json", "info", &buf)

	ctx := requestid.WithRequestID(context.Background(), "req-123")
	logger.InfoContext(ctx, "hello", "key", "value")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "req-123", record["request_id"])
	assert.Equal(t, "hello", record["msg"])
	assert.Equal(t, "value", record["key"])
}

func TestNew_TextFormatDoesNotPanic(t *testing.T) {
	var buf bytes.Buffer
	logger := New("text", "debug", &buf)
	logger.Debug("plain message")
	assert.Contains(t, buf.String(), "plain message")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("WARNING"))
	assert.Equal(t, slog.LevelError, ParseLevel("ERROR"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("unknown"))
}

func TestNew_RespectsLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := New("json", "warn", &buf)
	logger.Info("should not appear")
	assert.Empty(t, buf.String())
	logger.Warn("should appear")
	assert.NotEmpty(t, buf.String())
}
