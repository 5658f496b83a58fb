package logging

import (
	"io"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		MessageKey:     "msg",
		NameKey:        "logger",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.RFC3339NanoTimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	}
}

// NewJSONLogger creates a logger writing one JSON object per line to writer
func NewJSONLogger(writer io.Writer, level Level) *ZapLogger {
	atomicLevel := zap.NewAtomicLevelAt(level.zapLevel())
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig()),
		zapcore.AddSync(writer),
		atomicLevel,
	)
	return &ZapLogger{base: zap.New(core), level: atomicLevel}
}

// NewConsoleLogger creates a human-readable logger, used by the CLI in
// development mode
func NewConsoleLogger(writer io.Writer, level Level) *ZapLogger {
	atomicLevel := zap.NewAtomicLevelAt(level.zapLevel())
	cfg := encoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(cfg),
		zapcore.AddSync(writer),
		atomicLevel,
	)
	return &ZapLogger{base: zap.New(core), level: atomicLevel}
}

// NewDefaultLogger creates a logger that writes to stderr at INFO level
func NewDefaultLogger() *ZapLogger {
	return NewJSONLogger(os.Stderr, InfoLevel)
}

func toZap(fields []Field) []zap.Field {
	if len(fields) == 0 {
		return nil
	}
	out := make([]zap.Field, len(fields))
	for i, f := range fields {
		out[i] = f.zap()
	}
	return out
}

// Debug logs a debug-level message
func (l *ZapLogger) Debug(msg string, fields ...Field) {
	l.base.Debug(msg, toZap(fields)...)
}

// Info logs an info-level message
func (l *ZapLogger) Info(msg string, fields ...Field) {
	l.base.Info(msg, toZap(fields)...)
}

// Warn logs a warning-level message
func (l *ZapLogger) Warn(msg string, fields ...Field) {
	l.base.Warn(msg, toZap(fields)...)
}

// Error logs an error-level message
func (l *ZapLogger) Error(msg string, fields ...Field) {
	l.base.Error(msg, toZap(fields)...)
}

// With creates a child logger with the given fields pre-set
func (l *ZapLogger) With(fields ...Field) Logger {
	return &ZapLogger{base: l.base.With(toZap(fields)...), level: l.level}
}

// SetLevel sets the minimum log level
func (l *ZapLogger) SetLevel(level Level) {
	l.level.SetLevel(level.zapLevel())
}

// GetLevel returns the current log level
func (l *ZapLogger) GetLevel() Level {
	return levelFromZap(l.level.Level())
}

// Sync flushes buffered output
func (l *ZapLogger) Sync() error {
	return l.base.Sync()
}

// Global default logger
var (
	defaultLogger Logger
	defaultMu     sync.RWMutex
	once          sync.Once
)

// DefaultLogger returns the global default logger
func DefaultLogger() Logger {
	once.Do(func() {
		level := InfoLevel
		if levelStr := os.Getenv("LOG_LEVEL"); levelStr != "" {
			level = ParseLevel(levelStr)
		}
		defaultMu.Lock()
		if defaultLogger == nil {
			defaultLogger = NewJSONLogger(os.Stderr, level)
		}
		defaultMu.Unlock()
	})
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultLogger
}

// SetDefaultLogger sets the global default logger
func SetDefaultLogger(logger Logger) {
	once.Do(func() {})
	defaultMu.Lock()
	defaultLogger = logger
	defaultMu.Unlock()
}

// OrDefault returns logger, or the default logger when logger is nil
func OrDefault(logger Logger) Logger {
	if logger != nil {
		return logger
	}
	return DefaultLogger()
}

// Debug logs a debug-level message using the default logger
func Debug(msg string, fields ...Field) {
	DefaultLogger().Debug(msg, fields...)
}

// Info logs an info-level message using the default logger
func Info(msg string, fields ...Field) {
	DefaultLogger().Info(msg, fields...)
}

// Warn logs a warning-level message using the default logger
func Warn(msg string, fields ...Field) {
	DefaultLogger().Warn(msg, fields...)
}

// ErrorLog logs an error-level message using the default logger
// Named ErrorLog to avoid conflict with Error field constructor
func ErrorLog(msg string, fields ...Field) {
	DefaultLogger().Error(msg, fields...)
}

// With creates a child logger with the given fields pre-set using the default logger
func With(fields ...Field) Logger {
	return DefaultLogger().With(fields...)
}

// TimedOperation helps measure operation duration
type TimedOperation struct {
	logger Logger
	msg    string
	start  time.Time
	fields []Field
}

// StartTimer begins timing an operation
func StartTimer(logger Logger, msg string, fields ...Field) *TimedOperation {
	return &TimedOperation{
		logger: logger,
		msg:    msg,
		start:  time.Now(),
		fields: fields,
	}
}

// End logs the operation with its duration and returns the elapsed time
func (t *TimedOperation) End() time.Duration {
	elapsed := time.Since(t.start)
	t.logger.Info(t.msg, append(t.fields, Latency(elapsed))...)
	return elapsed
}

// EndError logs the operation as an error with its duration
func (t *TimedOperation) EndError(err error) time.Duration {
	elapsed := time.Since(t.start)
	t.logger.Error(t.msg, append(t.fields, Latency(elapsed), Error(err))...)
	return elapsed
}
