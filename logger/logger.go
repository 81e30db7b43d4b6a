package logger

import (
	"os"

	"github.com/rs/zerolog"

	"github.com/permitio/pdp-sidecar/config"
)

// New returns a configured zerolog.Logger. Verbosity is controlled by
// cfg.Debug rather than an environment tier, since this sidecar has no
// separate staging/production distinction of its own.
func New(cfg *config.Config) zerolog.Logger {
	out := zerolog.ConsoleWriter{Out: os.Stderr}
	lvl := zerolog.InfoLevel
	if cfg.Debug {
		lvl = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(lvl)
	log := zerolog.New(out).With().Timestamp().Logger()
	return log
}
