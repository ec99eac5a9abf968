package membership

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// ZeroLogger adapts a zerolog.Logger to Logger.
type ZeroLogger struct {
	zl zerolog.Logger
}

// NewLogger creates a JSON logger that writes to w and tags every line with
// the component name.
func NewLogger(w io.Writer, name string, level string) *ZeroLogger {
	if w == nil {
		w = os.Stdout
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	zl := zerolog.New(w).
		Level(lvl).
		With().
		Timestamp().
		Str("logger", name).
		Logger()

	return &ZeroLogger{zl: zl}
}

// Named returns a child logger for a sub component.
func (l *ZeroLogger) Named(name string) *ZeroLogger {
	return &ZeroLogger{zl: l.zl.With().Str("component", name).Logger()}
}

func (l *ZeroLogger) Debug(msg string, args ...any) {
	withFields(l.zl.Debug(), args).Msg(msg)
}

func (l *ZeroLogger) Info(msg string, args ...any) {
	withFields(l.zl.Info(), args).Msg(msg)
}

func (l *ZeroLogger) Warn(msg string, args ...any) {
	withFields(l.zl.Warn(), args).Msg(msg)
}

func (l *ZeroLogger) Error(msg string, args ...any) {
	withFields(l.zl.Error(), args).Msg(msg)
}

var _ Logger = (*ZeroLogger)(nil)

func withFields(evt *zerolog.Event, args []any) *zerolog.Event {
	if evt == nil || len(args) == 0 {
		return evt
	}
	if len(args)%2 != 0 {
		args = append(args, "(MISSING)")
	}
	for i := 0; i < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			continue
		}
		if err, ok := args[i+1].(error); ok {
			evt = evt.AnErr(key, err)
			continue
		}
		evt = evt.Interface(key, args[i+1])
	}
	return evt
}

func defLogger(name string) Logger {
	return NewLogger(os.Stdout, "membership."+name, "info")
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// NopLogger discards every message.
func NopLogger() Logger {
	return nopLogger{}
}

func normalizeLogger(l Logger, name string) Logger {
	if l == nil {
		return defLogger(name)
	}
	return l
}
