package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type Logger struct {
	zl zerolog.Logger
}

type Config struct {
	Level      string // debug, info, warn, error
	Format     string // json or console
	Output     string // stdout, stderr, or file path
	TimeFormat string
}

// New builds a logger from cfg. The level applies to this logger and its
// children only.
func New(cfg *Config) (*Logger, error) {
	level := zerolog.InfoLevel
	if cfg.Level != "" {
		lv, err := zerolog.ParseLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level: %w", err)
		}
		level = lv
	}

	var output io.Writer
	switch cfg.Output {
	case "", "stdout":
		output = os.Stdout
	case "stderr":
		output = os.Stderr
	default:
		file, err := os.OpenFile(cfg.Output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("could not open log file: %w", err)
		}
		output = file
	}

	timeFormat := cfg.TimeFormat
	if timeFormat == "" {
		timeFormat = time.RFC3339Nano
	}
	if cfg.Format == "console" {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: timeFormat}
	}
	return NewWriter(output, level), nil
}

// NewWriter logs JSON lines to w at level and above.
func NewWriter(w io.Writer, level zerolog.Level) *Logger {
	zl := zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		CallerWithSkipFrameCount(3).
		Logger()
	return &Logger{zl: zl}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

// With returns a child logger that always carries the given fields.
func (l *Logger) With(fields ...Field) *Logger {
	ctx := l.zl.With()
	for _, f := range fields {
		ctx = f.ctx(ctx)
	}
	return &Logger{zl: ctx.Logger()}
}

func (l *Logger) Info(msg string, fields ...Field) {
	l.emit(l.zl.Info(), msg, fields)
}

func (l *Logger) Error(msg string, fields ...Field) {
	l.emit(l.zl.Error(), msg, fields)
}

func (l *Logger) Debug(msg string, fields ...Field) {
	l.emit(l.zl.Debug(), msg, fields)
}

func (l *Logger) Warn(msg string, fields ...Field) {
	l.emit(l.zl.Warn(), msg, fields)
}

func (l *Logger) emit(event *zerolog.Event, msg string, fields []Field) {
	if event == nil {
		return
	}
	for _, f := range fields {
		f.event(event)
	}
	event.Msg(msg)
}

// Field is a typed key/value attached to a log line or a child logger.
type Field struct {
	event func(*zerolog.Event)
	ctx   func(zerolog.Context) zerolog.Context
}

func String(key, value string) Field {
	return Field{
		event: func(e *zerolog.Event) { e.Str(key, value) },
		ctx:   func(c zerolog.Context) zerolog.Context { return c.Str(key, value) },
	}
}

func Int(key string, value int) Field {
	return Field{
		event: func(e *zerolog.Event) { e.Int(key, value) },
		ctx:   func(c zerolog.Context) zerolog.Context { return c.Int(key, value) },
	}
}

func Float64(key string, value float64) Field {
	return Field{
		event: func(e *zerolog.Event) { e.Float64(key, value) },
		ctx:   func(c zerolog.Context) zerolog.Context { return c.Float64(key, value) },
	}
}

func Bool(key string, value bool) Field {
	return Field{
		event: func(e *zerolog.Event) { e.Bool(key, value) },
		ctx:   func(c zerolog.Context) zerolog.Context { return c.Bool(key, value) },
	}
}

// Error logs err under "error". A nil error is omitted.
func Error(err error) Field {
	return Field{
		event: func(e *zerolog.Event) {
			if err != nil {
				e.Err(err)
			}
		},
		ctx: func(c zerolog.Context) zerolog.Context {
			if err != nil {
				return c.Err(err)
			}
			return c
		},
	}
}

// Duration logs d in milliseconds.
func Duration(key string, d time.Duration) Field {
	return Field{
		event: func(e *zerolog.Event) { e.Dur(key, d) },
		ctx:   func(c zerolog.Context) zerolog.Context { return c.Dur(key, d) },
	}
}

// Date logs a calendar date as YYYY-MM-DD.
func Date(key string, value time.Time) Field {
	return String(key, value.Format("2006-01-02"))
}

func Strings(key string, value []string) Field {
	return String(key, strings.Join(value, ","))
}

func Ints(key string, value []int) Field {
	return Field{
		event: func(e *zerolog.Event) { e.Ints(key, value) },
		ctx:   func(c zerolog.Context) zerolog.Context { return c.Ints(key, value) },
	}
}
