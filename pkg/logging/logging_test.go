package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"":      slog.LevelInfo,
		"debug": slog.LevelDebug,
		"WARN":  slog.LevelWarn,
		"error": slog.LevelError,
	} {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("chatty")
	assert.Error(t, err)
}

func TestConsoleLoggerHonoursLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, cleanup, err := setup(&buf, "warn", "")
	require.NoError(t, err)
	defer cleanup()

	logger.Info("hidden")
	logger.Warn("shown", "table", "orders")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "table=orders")
}

func TestFanoutSkipsHandlersBelowTheirLevel(t *testing.T) {
	var debug, warn bytes.Buffer
	h := &fanout{handlers: []slog.Handler{
		slog.NewTextHandler(&debug, &slog.HandlerOptions{Level: slog.LevelDebug}),
		slog.NewTextHandler(&warn, &slog.HandlerOptions{Level: slog.LevelWarn}),
	}}
	assert.True(t, h.Enabled(context.Background(), slog.LevelDebug))

	logger := slog.New(h).With("component", "test")
	logger.Debug("detail")
	logger.Error("boom")

	assert.Contains(t, debug.String(), "detail")
	assert.Contains(t, debug.String(), "component=test")
	assert.NotContains(t, warn.String(), "detail")
	assert.Contains(t, warn.String(), "boom")
}
