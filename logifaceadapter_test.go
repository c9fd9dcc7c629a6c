package sage

import (
	"errors"
	"testing"

	"github.com/joeycumines/logiface"
	"github.com/stretchr/testify/require"
)

func TestLogifaceLoggerWritesMappedFields(t *testing.T) {
	var captured *logifaceEvent
	writer := logiface.WriterFunc[*logifaceEvent](func(e *logifaceEvent) error {
		captured = e
		return nil
	})

	l := NewLogifaceLogger(writer, LevelDebug)
	require.True(t, l.IsEnabled(LevelInfo))

	cause := errors.New("boom")
	l.Log(LogEntry{
		Level:    LevelWarn,
		Category: "resource",
		Message:  "deadlock detected",
		Tick:     7,
		EventKey: 3,
		Err:      cause,
		Context:  map[string]any{"waiter": "r1"},
	})

	require.NotNil(t, captured)
	require.Equal(t, "deadlock detected", captured.message)
	require.Equal(t, cause, captured.err)
	require.Equal(t, "resource", captured.fields["category"])
	require.Equal(t, int64(7), captured.fields["tick"])
	require.Equal(t, uint64(3), captured.fields["event"])
	require.Equal(t, "r1", captured.fields["waiter"])
}

func TestLogifaceLoggerIsEnabledRespectsMaxLevel(t *testing.T) {
	writer := logiface.WriterFunc[*logifaceEvent](func(*logifaceEvent) error { return nil })
	l := NewLogifaceLogger(writer, LevelWarn)

	require.True(t, l.IsEnabled(LevelError))
	require.True(t, l.IsEnabled(LevelWarn))
	require.False(t, l.IsEnabled(LevelDebug))
}
