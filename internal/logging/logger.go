// Package logging provides the narrow structured-logging interface used
// throughout this module, adapted from the donor's
// internal/services/application_logger.go (which itself wraps
// go.uber.org/zap). The donor's own interface lives in a vendored SDK
// module that can't be imported here, so the contract is reproduced
// directly against zap.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ApplicationLogger is the printf-style logging contract every wsconn
// component depends on. Callers format with args the way fmt.Sprintf
// would, matching the donor's calling convention throughout
// pkg/websocket/*.
type ApplicationLogger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
}

// zapLogger adapts a *zap.Logger to ApplicationLogger, mirroring
// internal/services/application_logger.go's ApplicationLoggerAdapter.
type zapLogger struct {
	logger *zap.Logger
}

// NewApplicationLogger wraps an existing *zap.Logger.
func NewApplicationLogger(logger *zap.Logger) ApplicationLogger {
	return &zapLogger{logger: logger}
}

func (l *zapLogger) Debug(msg string, args ...interface{}) { l.logger.Debug(format(msg, args)) }
func (l *zapLogger) Info(msg string, args ...interface{})  { l.logger.Info(format(msg, args)) }
func (l *zapLogger) Warn(msg string, args ...interface{})  { l.logger.Warn(format(msg, args)) }
func (l *zapLogger) Error(msg string, args ...interface{}) { l.logger.Error(format(msg, args)) }

func format(msg string, args []interface{}) string {
	if len(args) == 0 {
		return msg
	}
	return fmt.Sprintf(msg, args...)
}

// NewLogger builds a production zap.Logger with the level/encoding the
// donor's internal/infrastructure/logging.go configures, keyed off a
// plain level string ("debug", "info", "warn", "error") so callers don't
// need to depend on zapcore directly.
func NewLogger(level string, development bool) (*zap.Logger, error) {
	var lvl zapcore.Level
	switch level {
	case "debug":
		lvl = zapcore.DebugLevel
	case "warn":
		lvl = zapcore.WarnLevel
	case "error":
		lvl = zapcore.ErrorLevel
	default:
		lvl = zapcore.InfoLevel
	}

	cfg := zap.Config{
		Level:       zap.NewAtomicLevelAt(lvl),
		Development: development,
		Encoding:    "console",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "ts",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			FunctionKey:    zapcore.OmitKey,
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.LowercaseLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}

	return cfg.Build()
}

// noOpLogger discards everything; used by tests in place of a real zap
// logger, mirroring the donor test suite's logger.NewNoOpLogger().
type noOpLogger struct{}

// NewNoOpLogger returns an ApplicationLogger that does nothing.
func NewNoOpLogger() ApplicationLogger { return noOpLogger{} }

func (noOpLogger) Debug(string, ...interface{}) {}
func (noOpLogger) Info(string, ...interface{})  {}
func (noOpLogger) Warn(string, ...interface{})  {}
func (noOpLogger) Error(string, ...interface{}) {}
