// Package logger wraps zerolog behind the printf-style, emoji-prefixed call
// surface the original strategy code used ("logger.Infof(...)"), so the rest
// of the codebase never imports zerolog directly.
package logger

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

var base = zerolog.New(consoleWriter()).With().Timestamp().Logger()

func consoleWriter() io.Writer {
	if os.Getenv("EASYORB_LOG_JSON") == "true" {
		return os.Stdout
	}
	return zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
}

// SetLevel adjusts the global minimum level ("debug", "info", "warn", "error").
func SetLevel(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

// Logger is a component-scoped logger carrying structured fields.
type Logger struct {
	z zerolog.Logger
}

// For returns a Logger tagged with a "component" field, e.g. "oauth",
// "execution", "exit".
func For(component string) *Logger {
	return &Logger{z: base.With().Str("component", component).Logger()}
}

// With returns a copy of l with an additional string field attached.
func (l *Logger) With(key, value string) *Logger {
	return &Logger{z: l.z.With().Str(key, value).Logger()}
}

// WithFloat returns a copy of l with an additional float field attached.
func (l *Logger) WithFloat(key string, value float64) *Logger {
	return &Logger{z: l.z.With().Float64(key, value).Logger()}
}

func (l *Logger) Debugf(format string, args ...any) { l.z.Debug().Msg(fmt.Sprintf(format, args...)) }
func (l *Logger) Infof(format string, args ...any)  { l.z.Info().Msg(fmt.Sprintf(format, args...)) }
func (l *Logger) Warnf(format string, args ...any)  { l.z.Warn().Msg(fmt.Sprintf(format, args...)) }
func (l *Logger) Errorf(format string, args ...any) { l.z.Error().Msg(fmt.Sprintf(format, args...)) }

// Alert logs at error level with an alert=true field. It does not itself
// notify the alert manager (see internal/alert).
func (l *Logger) Alert(format string, args ...any) {
	l.z.Error().Bool("alert", true).Msg(fmt.Sprintf(format, args...))
}

var std = For("easyorb")

func Debugf(format string, args ...any) { std.Debugf(format, args...) }
func Infof(format string, args ...any)  { std.Infof(format, args...) }
func Warnf(format string, args ...any)  { std.Warnf(format, args...) }
func Errorf(format string, args ...any) { std.Errorf(format, args...) }
