package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextFieldsAreAdded(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, slog.LevelInfo, true)

	ctx := ContextWithRequestID(context.Background(), "req-1")
	ctx = ContextWithUserID(ctx, "admin")
	l.WithComponent("test").InfoContext(ctx, "hello")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "hello", entry["msg"])
	assert.Equal(t, "req-1", entry["request_id"])
	assert.Equal(t, "admin", entry["user_id"])
	assert.Equal(t, "test", entry["component"])
}

func TestContextFieldsDoNotDuplicateExplicitOnes(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, slog.LevelInfo, false)

	ctx := ContextWithRequestID(context.Background(), "req-ctx")
	l.InfoContext(ctx, "explicit", "request_id", "req-attr")
	l.Info("no context")

	out := buf.String()
	assert.Equal(t, 1, strings.Count(out, "request_id="))
	assert.Contains(t, out, "request_id=req-attr")
}

func TestTextFormatIsUncoloredOffTerminal(t *testing.T) {
	var buf bytes.Buffer
	NewWithWriter(&buf, slog.LevelInfo, false).Info("plain", "k", "v")

	out := buf.String()
	assert.Contains(t, out, "plain")
	assert.Contains(t, out, "k=v")
	assert.NotContains(t, out, "\x1b[")
}

func TestLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, slog.LevelWarn, true)
	l.Info("dropped")
	assert.Empty(t, buf.String())
	l.Warn("kept")
	assert.Contains(t, buf.String(), "kept")
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"":      slog.LevelInfo,
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	} {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestConfigure(t *testing.T) {
	_, err := Configure("info", "json")
	assert.NoError(t, err)
	_, err = Configure("debug", "text")
	assert.NoError(t, err)
	_, err = Configure("info", "xml")
	assert.Error(t, err)
	_, err = Configure("nope", "json")
	assert.Error(t, err)
}

func TestContextHelpersEmpty(t *testing.T) {
	assert.Empty(t, RequestIDFromContext(context.Background()))
	assert.Empty(t, UserIDFromContext(context.Background()))
}
