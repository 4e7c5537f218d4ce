package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewLoggerWithWriter_Formats(t *testing.T) {
	var text, js bytes.Buffer
	NewLoggerWithWriter(slog.LevelInfo, "text", &text).Info("job admitted", "job_id", "job_1")
	NewLoggerWithWriter(slog.LevelInfo, "JSON", &js).Info("job admitted", "job_id", "job_1")

	assert.Contains(t, text.String(), "job_id=job_1")
	assert.Contains(t, js.String(), `"msg":"job admitted"`)
	assert.Contains(t, js.String(), `"job_id":"job_1"`)
}

func TestNewLoggerWithWriter_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(slog.LevelWarn, "text", &buf).With("component", "queue")

	logger.Info("hidden")
	logger.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
	assert.Contains(t, buf.String(), "component=queue")
}

func TestDiscard(t *testing.T) {
	assert.False(t, Discard().Enabled(context.Background(), slog.LevelError))
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{" info ", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"Warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"verbose", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLevel(tt.input), tt.input)
	}
}

func TestLevelName(t *testing.T) {
	assert.Equal(t, "debug", LevelName(slog.LevelDebug))
	assert.Equal(t, "info", LevelName(slog.LevelInfo))
	assert.Equal(t, "warn", LevelName(slog.LevelWarn))
	assert.Equal(t, "error", LevelName(slog.LevelError))
	assert.Equal(t, "error", LevelName(slog.LevelError+4))
}

func TestTimestamp(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("CET", 3600))
	assert.Equal(t, "2026-03-01T11:00:00Z", Timestamp(ts))
}
