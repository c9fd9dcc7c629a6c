package sage

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultLoggerRespectsLevel(t *testing.T) {
	l := NewDefaultLogger(LevelWarn)
	require.False(t, l.IsEnabled(LevelInfo))
	require.True(t, l.IsEnabled(LevelWarn))
	require.True(t, l.IsEnabled(LevelError))

	l.SetLevel(LevelDebug)
	require.True(t, l.IsEnabled(LevelDebug))
}

func TestDefaultLoggerWritesEnabledEntries(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()

	l := NewDefaultLogger(LevelInfo)
	l.Out = w
	l.Log(LogEntry{Level: LevelDebug, Category: "queue", Message: "skipped"})
	l.Log(LogEntry{Level: LevelInfo, Category: "queue", Message: "hello", Tick: 3, EventKey: 7})
	require.NoError(t, w.Close())

	buf := make([]byte, 4096)
	n, _ := r.Read(buf)
	out := string(buf[:n])
	require.Contains(t, out, "hello")
	require.Contains(t, out, "tick=3")
	require.NotContains(t, out, "skipped")
}

func TestNoOpLoggerDiscardsEverything(t *testing.T) {
	l := NewNoOpLogger()
	require.False(t, l.IsEnabled(LevelError))
	l.Log(LogEntry{Level: LevelError, Message: "ignored"})
}

func TestLogLevelString(t *testing.T) {
	require.Equal(t, "DEBUG", LevelDebug.String())
	require.Equal(t, "WARN", LevelWarn.String())
	require.Contains(t, LogLevel(99).String(), "UNKNOWN")
}
