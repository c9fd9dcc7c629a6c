package sage

import (
	"github.com/joeycumines/logiface"
)

// logifaceEvent is a minimal logiface.Event implementation used to bridge
// the kernel's own Logger interface onto any logiface-compatible backend
// (zerolog, logrus, slog, stumpy, ...) without the kernel depending on a
// specific one.
type logifaceEvent struct {
	logiface.UnimplementedEvent
	level   logiface.Level
	message string
	err     error
	fields  map[string]any
}

func (e *logifaceEvent) Level() logiface.Level { return e.level }

func (e *logifaceEvent) AddField(key string, val any) {
	if e.fields == nil {
		e.fields = make(map[string]any, 4)
	}
	e.fields[key] = val
}

func (e *logifaceEvent) AddMessage(msg string) bool {
	e.message = msg
	return true
}

func (e *logifaceEvent) AddError(err error) bool {
	e.err = err
	return true
}

type logifaceEventFactory struct{}

func (logifaceEventFactory) NewEvent(level logiface.Level) *logifaceEvent {
	return &logifaceEvent{level: level}
}

// LogifaceLogger adapts a logiface-backed logger to the kernel's Logger
// interface. Construct one with NewLogifaceLogger, supplying any
// logiface.Writer (e.g. a zerolog or logrus adapter from the wider
// logiface family of packages).
type LogifaceLogger struct {
	logger *logiface.Logger[*logifaceEvent]
}

// NewLogifaceLogger builds a LogifaceLogger writing through writer, at the
// given maximum verbosity.
func NewLogifaceLogger(writer logiface.Writer[*logifaceEvent], maxLevel LogLevel) *LogifaceLogger {
	l := logiface.New[*logifaceEvent](
		logiface.WithEventFactory[*logifaceEvent](logifaceEventFactory{}),
		logiface.WithLevel[*logifaceEvent](mapToLogifaceLevel(maxLevel)),
		logiface.WithWriter[*logifaceEvent](writer),
	)
	return &LogifaceLogger{logger: l}
}

// mapToLogifaceLevel converts the kernel's coarse LogLevel into the
// equivalent syslog-style logiface.Level.
func mapToLogifaceLevel(level LogLevel) logiface.Level {
	switch level {
	case LevelDebug:
		return logiface.LevelDebug
	case LevelInfo:
		return logiface.LevelInformational
	case LevelWarn:
		return logiface.LevelWarning
	case LevelError:
		return logiface.LevelError
	default:
		return logiface.LevelInformational
	}
}

// IsEnabled implements Logger.
func (a *LogifaceLogger) IsEnabled(level LogLevel) bool {
	configured := a.logger.Level()
	return configured.Enabled() && mapToLogifaceLevel(level) <= configured
}

// Log implements Logger, translating entry into a logiface event.
func (a *LogifaceLogger) Log(entry LogEntry) {
	_ = a.logger.Log(mapToLogifaceLevel(entry.Level), logiface.ModifierFunc[*logifaceEvent](func(e *logifaceEvent) error {
		e.AddMessage(entry.Message)
		if entry.Err != nil {
			e.AddError(entry.Err)
		}
		e.AddField("category", entry.Category)
		e.AddField("tick", int64(entry.Tick))
		e.AddField("event", uint64(entry.EventKey))
		for k, v := range entry.Context {
			e.AddField(k, v)
		}
		return nil
	}))
}
