package commands

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/tlsbox/internal/logger"
)

type Globals struct {
	Debug   bool
	Version string
}

// withLogger attaches the process logger to ctx.
func withLogger(ctx context.Context, globals *Globals) (context.Context, zerolog.Logger) {
	log := logger.Setup(globals.Debug).With().Str("version", globals.Version).Logger()
	return log.WithContext(ctx), log
}
