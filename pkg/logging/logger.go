// Package logging builds the service logger and scrubs sensitive values
// before they reach it.
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger returns a development console logger for local environments and a
// JSON production logger everywhere else. level overrides the default level
// when set ("debug", "info", "warn", "error").
func NewLogger(env, level string) (*zap.Logger, error) {
	var cfg zap.Config
	if isLocal(env) {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "timestamp"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	if level != "" {
		lvl, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", level, err)
		}
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger.With(zap.String("env", env)), nil
}

func isLocal(env string) bool {
	switch strings.ToLower(env) {
	case "", "local", "dev", "development", "test":
		return true
	}
	return false
}
