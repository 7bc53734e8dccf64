// Package logging provides structured logging for SecureLock.
package logging

import (
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Level represents a log level.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// ParseLevel converts a configuration string into a Level.
func ParseLevel(s string) (Level, error) {
	switch Level(s) {
	case LevelDebug, LevelInfo, LevelWarn, LevelError:
		return Level(s), nil
	case "":
		return LevelInfo, nil
	}
	return "", fmt.Errorf("unknown log level %q", s)
}

func (l Level) zapLevel() zapcore.Level {
	switch l {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Logger provides structured logging. Base fields and call fields are
// rendered under a "fields" object.
type Logger struct {
	mu     sync.Mutex
	level  zap.AtomicLevel
	output zapcore.WriteSyncer
	fields map[string]any
	zl     *zap.Logger
	closer io.Closer
}

// FileOptions configures rotated file output.
type FileOptions struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// NewLogger creates a new logger writing to stderr with the specified level.
func NewLogger(level Level) *Logger {
	l := &Logger{
		level:  zap.NewAtomicLevelAt(level.zapLevel()),
		output: zapcore.Lock(os.Stderr),
		fields: make(map[string]any),
	}
	l.build()
	return l
}

// NewFileLogger creates a logger that writes to a size-rotated file.
func NewFileLogger(level Level, opts FileOptions) *Logger {
	rotator := &lumberjack.Logger{
		Filename:   opts.Path,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
		Compress:   opts.Compress,
	}
	l := &Logger{
		level:  zap.NewAtomicLevelAt(level.zapLevel()),
		output: zapcore.Lock(zapcore.AddSync(rotator)),
		fields: make(map[string]any),
		closer: rotator,
	}
	l.build()
	return l
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	l := NewLogger(LevelError)
	l.SetOutput(io.Discard)
	return l
}

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		MessageKey:     "message",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.RFC3339NanoTimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	}
}

// build must be called with l.mu held or before l is shared.
func (l *Logger) build() {
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig()), l.output, l.level)
	zl := zap.New(core)
	if len(l.fields) > 0 {
		zl = zl.With(append([]zap.Field{zap.Namespace("fields")}, toZap(l.fields)...)...)
	}
	l.zl = zl
}

func toZap(fields map[string]any) []zap.Field {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]zap.Field, 0, len(keys))
	for _, k := range keys {
		out = append(out, zap.Any(k, fields[k]))
	}
	return out
}

// WithFields returns a new logger with additional fields. The new logger
// shares the level and output of l.
func (l *Logger) WithFields(fields map[string]any) *Logger {
	l.mu.Lock()
	defer l.mu.Unlock()

	newFields := make(map[string]any, len(l.fields)+len(fields))
	for k, v := range l.fields {
		newFields[k] = v
	}
	for k, v := range fields {
		newFields[k] = v
	}

	child := &Logger{
		level:  l.level,
		output: l.output,
		fields: newFields,
	}
	child.build()
	return child
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, fields ...map[string]any) {
	l.log(zapcore.DebugLevel, msg, fields...)
}

// Info logs an info message.
func (l *Logger) Info(msg string, fields ...map[string]any) {
	l.log(zapcore.InfoLevel, msg, fields...)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string, fields ...map[string]any) {
	l.log(zapcore.WarnLevel, msg, fields...)
}

// Error logs an error message.
func (l *Logger) Error(msg string, fields ...map[string]any) {
	l.log(zapcore.ErrorLevel, msg, fields...)
}

// ErrorErr logs an error message with an error value.
func (l *Logger) ErrorErr(msg string, err error, fields ...map[string]any) {
	l.log(zapcore.ErrorLevel, msg, merge(map[string]any{"error": errString(err)}, fields)...)
}

// WarnErr logs a warning with an error value. Used for swallowed failures.
func (l *Logger) WarnErr(msg string, err error, fields ...map[string]any) {
	l.log(zapcore.WarnLevel, msg, merge(map[string]any{"error": errString(err)}, fields)...)
}

func errString(err error) string {
	if err == nil {
		return "<nil>"
	}
	return err.Error()
}

func merge(first map[string]any, rest []map[string]any) []map[string]any {
	for _, f := range rest {
		for k, v := range f {
			first[k] = v
		}
	}
	return []map[string]any{first}
}

func (l *Logger) log(level zapcore.Level, msg string, fields ...map[string]any) {
	l.mu.Lock()
	zl := l.zl
	hasBase := len(l.fields) > 0
	l.mu.Unlock()

	if ce := zl.Check(level, msg); ce != nil {
		var zf []zap.Field
		combined := make(map[string]any)
		for _, f := range fields {
			for k, v := range f {
				combined[k] = v
			}
		}
		if len(combined) > 0 {
			if !hasBase {
				zf = append(zf, zap.Namespace("fields"))
			}
			zf = append(zf, toZap(combined)...)
		}
		ce.Write(zf...)
	}
}

// SetOutput sets the output writer.
func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.output = zapcore.Lock(zapcore.AddSync(w))
	l.build()
}

// SetLevel sets the log level. Loggers derived with WithFields share it.
func (l *Logger) SetLevel(level Level) {
	l.level.SetLevel(level.zapLevel())
}

// Sync flushes buffered output.
func (l *Logger) Sync() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.zl.Sync()
}

// Close flushes and releases a rotated log file, if any.
func (l *Logger) Close() error {
	_ = l.Sync()
	if l.closer != nil {
		return l.closer.Close()
	}
	return nil
}
