package logging

import (
	"os"

	"github.com/rs/zerolog"

	"github.com/edvin/kubelease/internal/config"
)

// NewLogger creates a structured zerolog.Logger tagged with the service name
// and levelled from the config. Unknown levels fall back to info.
func NewLogger(cfg *config.Config) zerolog.Logger {
	ctx := zerolog.New(os.Stdout).With().Timestamp()

	if cfg.ServiceName != "" {
		ctx = ctx.Str("service", cfg.ServiceName)
	}

	logger := ctx.Logger()

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}

	return logger.Level(level)
}
