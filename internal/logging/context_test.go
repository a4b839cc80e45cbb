package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextKeys(t *testing.T) {
	ctx := context.Background()

	assert.Equal(t, "", SessionID(ctx))
	assert.Equal(t, "", InstanceID(ctx))
	assert.Equal(t, "", UnitID(ctx))

	ctx = WithIDs(ctx, "s-1", "inst-9", "unit-4")

	assert.Equal(t, "s-1", SessionID(ctx))
	assert.Equal(t, "inst-9", InstanceID(ctx))
	assert.Equal(t, "unit-4", UnitID(ctx))
}

func TestWithIDsSkipsEmpty(t *testing.T) {
	ctx := WithInstanceID(context.Background(), "inst-1")
	ctx = WithIDs(ctx, "s-2", "", "")

	assert.Equal(t, "s-2", SessionID(ctx))
	assert.Equal(t, "inst-1", InstanceID(ctx), "empty value must not clear an existing one")
}

func TestLogWith(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	ctx := WithIDs(context.Background(), "s-abc", "inst-x", "unit-7")
	LogWith(ctx, logger).Info("test message")

	output := buf.String()
	assert.Contains(t, output, "session_id=s-abc")
	assert.Contains(t, output, "instance_id=inst-x")
	assert.Contains(t, output, "unit_id=unit-7")
	assert.Contains(t, output, "test message")
}

func TestLogWithMissingKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	LogWith(WithInstanceID(context.Background(), "inst-only"), logger).Info("partial context")

	output := buf.String()
	assert.Contains(t, output, "instance_id=inst-only")
	assert.NotContains(t, output, "session_id")
	assert.NotContains(t, output, "unit_id")
}

func TestCorrelationHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewCorrelationHandler(slog.NewJSONHandler(&buf, nil)))

	ctx := WithIDs(context.Background(), "s-1", "inst-1", "")
	logger.With(slog.String("component", "session")).InfoContext(ctx, "opened")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "s-1", rec["session_id"])
	assert.Equal(t, "inst-1", rec["instance_id"])
	assert.Equal(t, "session", rec["component"])
	assert.NotContains(t, rec, "unit_id")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"WARN", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{" error ", slog.LevelError},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestNew(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "json", "warn")

	logger.Info("hidden")
	logger.WarnContext(WithUnitID(context.Background(), "u-1"), "shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"unit_id":"u-1"`)

	buf.Reset()
	New(&buf, "text", "debug").Debug("text line")
	assert.Contains(t, buf.String(), "msg=\"text line\"")
}
