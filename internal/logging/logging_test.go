package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHandle_PullsWriteIDAheadOfMessage(t *testing.T) {
	var buf bytes.Buffer
	h := NewConsoleHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})

	r := slog.NewRecord(time.Now(), slog.LevelInfo, "quorum decision", 0)
	r.AddAttrs(slog.String("write_id", "abcdef1234567890"), slog.Int("replicas", 2))
	require.NoError(t, h.Handle(context.Background(), r))

	line := buf.String()
	msgIdx := strings.Index(line, "quorum decision")
	idIdx := strings.Index(line, "abcdef12")
	require.True(t, idIdx >= 0 && idIdx < msgIdx, "correlation tag must precede the message: %q", line)
	require.NotContains(t, line, "write_id=", "the tag replaces the trailing key=value form")
	require.Contains(t, line, "replicas=2")
}

func TestHandle_ErrorAttrGetsStackTrace(t *testing.T) {
	var buf bytes.Buffer
	h := NewConsoleHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})

	r := slog.NewRecord(time.Now(), slog.LevelError, "replication attempt failed", 0)
	r.AddAttrs(slog.Any("error", errors.New("peer unreachable")))
	require.NoError(t, h.Handle(context.Background(), r))

	require.Contains(t, buf.String(), "error: peer unreachable")
	require.Contains(t, buf.String(), "goroutine")
}

func TestEnabled_RespectsConfiguredLevel(t *testing.T) {
	h := NewConsoleHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelWarn})
	require.False(t, h.Enabled(context.Background(), slog.LevelInfo))
	require.True(t, h.Enabled(context.Background(), slog.LevelError))
}
