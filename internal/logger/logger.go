package logger

import (
	"go.uber.org/zap"
)

type Config struct {
	Development bool
}

// New builds the process-wide logger. Callers pass it down explicitly;
// there is no package-level instance.
func New(cfg Config) (*zap.Logger, error) {
	if cfg.Development {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
