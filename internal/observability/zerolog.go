package observability

import (
	"io"
	"strings"

	"github.com/rs/zerolog"
)

// zerologLogger adapts a zerolog.Logger to the Logger interface.
type zerologLogger struct {
	log zerolog.Logger
}

// NewZerolog builds a Logger backed by zerolog writing to w. Level accepts
// the usual zerolog level names; unknown values fall back to info.
func NewZerolog(w io.Writer, level string) Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	logger := zerolog.New(w).Level(lvl).With().Timestamp().Logger()
	return &zerologLogger{log: logger}
}

func (l *zerologLogger) Debug(msg string, fields ...Field) {
	emit(l.log.Debug(), msg, fields)
}

func (l *zerologLogger) Info(msg string, fields ...Field) {
	emit(l.log.Info(), msg, fields)
}

func (l *zerologLogger) Warn(msg string, fields ...Field) {
	emit(l.log.Warn(), msg, fields)
}

func (l *zerologLogger) Error(msg string, fields ...Field) {
	emit(l.log.Error(), msg, fields)
}

func emit(evt *zerolog.Event, msg string, fields []Field) {
	for _, f := range fields {
		if f.Key == "" {
			continue
		}
		switch v := f.Value.(type) {
		case string:
			evt = evt.Str(f.Key, v)
		case int:
			evt = evt.Int(f.Key, v)
		case error:
			evt = evt.AnErr(f.Key, v)
		case bool:
			evt = evt.Bool(f.Key, v)
		default:
			evt = evt.Interface(f.Key, v)
		}
	}
	evt.Msg(msg)
}
