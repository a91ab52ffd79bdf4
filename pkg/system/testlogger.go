package system

import (
	"go.uber.org/zap"
)

// NewTestLogger returns a development logger for tests with automatic
// stacktraces disabled.
func NewTestLogger() *zap.SugaredLogger {
	cfg := zap.NewDevelopmentConfig()
	cfg.DisableStacktrace = true
	logger, _ := cfg.Build()
	return logger.Sugar()
}
