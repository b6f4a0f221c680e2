// Package logging builds the zap loggers crawlscope components share.
package logging

import (
	"errors"
	"fmt"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a zap.Logger configured for development or production.
// Development logs are console-encoded with coloured levels; production
// logs are JSON. Both use "ts" for the timestamp.
func New(development bool) (*zap.Logger, error) {
	var cfg zap.Config
	if development {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
		cfg.DisableStacktrace = false
	}
	cfg.EncoderConfig.TimeKey = "ts"
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger (development=%t): %w", development, err)
	}
	return logger, nil
}

// ForRun tags every entry with the run id and the running command.
func ForRun(l *zap.Logger, runID, command string) *zap.Logger {
	return l.With(zap.String("run_id", runID), zap.String("command", command))
}

// Sync flushes l. Syncing a terminal fails with EINVAL or ENOTTY on some
// platforms, which is not worth reporting.
func Sync(l *zap.Logger) error {
	err := l.Sync()
	if err == nil || errors.Is(err, syscall.EINVAL) || errors.Is(err, syscall.ENOTTY) {
		return nil
	}
	return err
}
