package observability

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_ProductionIsJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "production", "info")

	logger.Info("loan granted", "loan_id", "l1")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "loan granted", line["msg"])
	assert.Equal(t, "l1", line["loan_id"])
}

func TestNewLogger_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "local", "warn")

	logger.Info("hidden")
	assert.Zero(t, buf.Len())

	logger.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("nonsense"))
}
