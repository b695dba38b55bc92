// Package logging builds the component-scoped loggers used across the
// engine. Every component receives its logger through options; there is
// no process-global logger.
package logging

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ParseLevel maps a config string to a zap level, defaulting to info.
func ParseLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel
	case "info", "":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// New creates a console logger tagged with a component name.
func New(component, level string) *zap.SugaredLogger {
	return build(component, level, zapcore.Lock(os.Stderr))
}

// NewWithFile creates a logger writing to both stderr and a log file.
func NewWithFile(component, level, path string) (*zap.SugaredLogger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	ws := zapcore.NewMultiWriteSyncer(zapcore.Lock(os.Stderr), zapcore.AddSync(f))
	return build(component, level, ws), nil
}

// NewNop creates a logger that discards everything, for tests.
func NewNop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

func build(component, level string, ws zapcore.WriteSyncer) *zap.SugaredLogger {
	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), ws, ParseLevel(level))
	return zap.New(core).Sugar().With("component", component)
}
