// Package logging provides the structured logger used across the gateway.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// LogLevel orders records by severity.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps a config value onto a LogLevel. Unknown values map to
// LevelInfo.
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func (l LogLevel) slogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Logger is the structured logger handed to every component. fields are
// alternating key/value pairs.
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...interface{})
	Info(ctx context.Context, msg string, fields ...interface{})
	Warn(ctx context.Context, err error, msg string, fields ...interface{})
	Error(ctx context.Context, err error, msg string, fields ...interface{})

	With(fields ...interface{}) Logger
	WithComponent(component string) Logger
}

// SlogLogger implements Logger on top of log/slog. Level filtering happens
// before records reach the handler so that a Nop logger costs nothing.
type SlogLogger struct {
	logger    *slog.Logger
	level     LogLevel
	component string
	attrs     []slog.Attr
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level     LogLevel
	Format    string // "json" or "text"
	Output    io.Writer
	AddSource bool
	Component string
}

// DefaultConfig returns default logger configuration
func DefaultConfig() *LoggerConfig {
	return &LoggerConfig{
		Level:  LevelInfo,
		Format: "text",
		Output: os.Stdout,
	}
}

// NewLogger creates a new structured logger
func NewLogger(config *LoggerConfig) *SlogLogger {
	if config == nil {
		config = DefaultConfig()
	}
	output := config.Output
	if output == nil {
		output = os.Stdout
	}

	opts := &slog.HandlerOptions{
		Level:     config.Level.slogLevel(),
		AddSource: config.AddSource,
	}

	var handler slog.Handler = slog.NewTextHandler(output, opts)
	if config.Format == "json" {
		handler = slog.NewJSONHandler(output, opts)
	}

	return &SlogLogger{
		logger:    slog.New(handler),
		level:     config.Level,
		component: config.Component,
	}
}

// NewNopLogger returns a logger that discards everything.
func NewNopLogger() *SlogLogger {
	return NewLogger(&LoggerConfig{Level: LevelError + 1, Output: io.Discard})
}

func (l *SlogLogger) Debug(ctx context.Context, msg string, fields ...interface{}) {
	l.log(ctx, LevelDebug, nil, msg, fields)
}

func (l *SlogLogger) Info(ctx context.Context, msg string, fields ...interface{}) {
	l.log(ctx, LevelInfo, nil, msg, fields)
}

func (l *SlogLogger) Warn(ctx context.Context, err error, msg string, fields ...interface{}) {
	l.log(ctx, LevelWarn, err, msg, fields)
}

func (l *SlogLogger) Error(ctx context.Context, err error, msg string, fields ...interface{}) {
	l.log(ctx, LevelError, err, msg, fields)
}

// With returns a logger that adds fields, given as key/value pairs, to
// every record.
func (l *SlogLogger) With(fields ...interface{}) Logger {
	child := *l
	child.attrs = appendPairs(append([]slog.Attr(nil), l.attrs...), fields)
	return &child
}

// WithComponent returns a logger tagging records with component.
func (l *SlogLogger) WithComponent(component string) Logger {
	child := *l
	child.component = component
	return &child
}

func (l *SlogLogger) log(ctx context.Context, level LogLevel, err error, msg string, fields []interface{}) {
	if level < l.level {
		return
	}

	attrs := make([]slog.Attr, 0, len(l.attrs)+len(fields)/2+2)
	if l.component != "" {
		attrs = append(attrs, slog.String("component", l.component))
	}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	attrs = append(attrs, l.attrs...)
	attrs = appendPairs(attrs, fields)

	record := slog.NewRecord(time.Now(), level.slogLevel(), msg, 0)
	record.AddAttrs(attrs...)
	_ = l.logger.Handler().Handle(ctx, record)
}

// appendPairs converts alternating key/value fields. Pairs with a non-string
// key and a trailing odd field are dropped.
func appendPairs(attrs []slog.Attr, fields []interface{}) []slog.Attr {
	for i := 0; i+1 < len(fields); i += 2 {
		if key, ok := fields[i].(string); ok {
			attrs = append(attrs, slog.Any(key, fields[i+1]))
		}
	}
	return attrs
}

// FileLogger writes to one file per day under a log directory.
type FileLogger struct {
	*SlogLogger
	file *os.File
}

// NewFileLogger opens today's log file in logDir, creating the directory if
// needed.
func NewFileLogger(config *LoggerConfig, logDir string) (*FileLogger, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	path := filepath.Join(logDir, "ssrgate-"+time.Now().Format("2006-01-02")+".log")
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	fileConfig := *config
	fileConfig.Output = file
	return &FileLogger{SlogLogger: NewLogger(&fileConfig), file: file}, nil
}

// Path returns the file being written.
func (f *FileLogger) Path() string {
	return f.file.Name()
}

func (f *FileLogger) Close() error {
	return f.file.Close()
}

// MultiLogger fans every record out to several loggers.
type MultiLogger struct {
	loggers []Logger
}

func NewMultiLogger(loggers ...Logger) *MultiLogger {
	return &MultiLogger{loggers: loggers}
}

func (m *MultiLogger) Debug(ctx context.Context, msg string, fields ...interface{}) {
	for _, l := range m.loggers {
		l.Debug(ctx, msg, fields...)
	}
}

func (m *MultiLogger) Info(ctx context.Context, msg string, fields ...interface{}) {
	for _, l := range m.loggers {
		l.Info(ctx, msg, fields...)
	}
}

func (m *MultiLogger) Warn(ctx context.Context, err error, msg string, fields ...interface{}) {
	for _, l := range m.loggers {
		l.Warn(ctx, err, msg, fields...)
	}
}

func (m *MultiLogger) Error(ctx context.Context, err error, msg string, fields ...interface{}) {
	for _, l := range m.loggers {
		l.Error(ctx, err, msg, fields...)
	}
}

func (m *MultiLogger) With(fields ...interface{}) Logger {
	return m.derive(func(l Logger) Logger { return l.With(fields...) })
}

func (m *MultiLogger) WithComponent(component string) Logger {
	return m.derive(func(l Logger) Logger { return l.WithComponent(component) })
}

func (m *MultiLogger) derive(fn func(Logger) Logger) *MultiLogger {
	loggers := make([]Logger, len(m.loggers))
	for i, l := range m.loggers {
		loggers[i] = fn(l)
	}
	return &MultiLogger{loggers: loggers}
}

// Operation times one unit of work, such as a module load.
type Operation struct {
	logger Logger
	start  time.Time
}

// StartOperation begins timing operation.
func StartOperation(logger Logger, operation string) *Operation {
	return &Operation{
		logger: logger.With("operation", operation),
		start:  time.Now(),
	}
}

// End logs the elapsed time at debug level.
func (o *Operation) End(ctx context.Context) {
	elapsed := time.Since(o.start)
	o.logger.Debug(ctx, "Operation completed", "duration_ms", elapsed.Milliseconds(), "duration", elapsed.String())
}

// EndWithError logs the failure and the elapsed time.
func (o *Operation) EndWithError(ctx context.Context, err error) {
	elapsed := time.Since(o.start)
	o.logger.Error(ctx, err, "Operation failed", "duration_ms", elapsed.Milliseconds(), "duration", elapsed.String())
}
