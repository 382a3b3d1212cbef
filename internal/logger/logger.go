package logger

import (
	"go.uber.org/zap"
)

// New builds a zap logger at the given level ("debug", "info", ...).
// Development mode switches to the console encoder with stack traces on warn.
func New(level string, development bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if development {
		cfg = zap.NewDevelopmentConfig()
	}
	if level != "" {
		lvl, err := zap.ParseAtomicLevel(level)
		if err != nil {
			return nil, err
		}
		cfg.Level = lvl
	}
	return cfg.Build()
}
