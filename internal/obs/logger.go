package obs

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds the process-wide structured logger handle. Unlike a
// package-global logger, this is constructed once at Mount time and passed
// explicitly into every subsystem constructor, per spec.md §9's "Global
// emission framework" design note and the teacher's own avoidance of
// singletons (obs.Metrics is always passed in, never looked up).
func NewLogger(development bool) (*zap.Logger, error) {
	if development {
		cfg := zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return cfg.Build()
	}
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}

// NopLogger returns a logger that discards everything, for tests and
// components constructed without an explicit logging requirement.
func NopLogger() *zap.Logger {
	return zap.NewNop()
}
