// Package logger builds the structured loggers used throughout Ignite.
// Every subsystem receives a *zap.SugaredLogger scoped to its service name
// so log lines can be filtered by component without parsing messages.
package logger

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a production-configured, JSON-encoded logger tagged with the
// given service name. The log level can be overridden with the IGNITE_LOG_LEVEL
// environment variable (debug, info, warn, error); it defaults to info.
func New(service string) *zap.SugaredLogger {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(levelFromEnv())
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	base, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		// Building a production logger should never fail with a static
		// config; fall back to a no-op logger rather than panic.
		base = zap.NewNop()
	}

	return base.Named(service).Sugar()
}

func levelFromEnv() zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("IGNITE_LOG_LEVEL"))) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
