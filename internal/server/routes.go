package server

import (
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/klauspost/compress/gzhttp"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	httpmiddleware "github.com/wolfeidau/tlsbox/internal/http"
)

// ErrRoute is returned when a route cannot be registered.
var ErrRoute = errors.New("invalid route")

// buildHandler registers every route as a GET handler and wraps the mux in the
// logging, client ip and metrics middleware.
func buildHandler(cfg Config, logger zerolog.Logger) (http.Handler, error) {
	mux := http.NewServeMux()

	// sorted so registration errors are reported deterministically
	patterns := make([]string, 0, len(cfg.Routes))
	for pattern := range cfg.Routes {
		patterns = append(patterns, pattern)
	}
	slices.Sort(patterns)

	for _, pattern := range patterns {
		if err := registerGet(mux, pattern, cfg.Routes[pattern]); err != nil {
			return nil, err
		}
		logger.Debug().Str("pattern", pattern).Msg("Registered route")
	}

	var handler http.Handler = mux

	if cfg.Compress {
		handler = gzhttp.GzipHandler(handler)
	}

	if len(cfg.CORSOrigins) > 0 {
		handler = cors.New(cors.Options{
			AllowedOrigins: cfg.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodHead},
		}).Handler(handler)
	}

	return httpmiddleware.Chain(handler,
		httpmiddleware.ClientIPMiddleware(false),
		httpmiddleware.RequestLogger(logger),
		httpmiddleware.Metrics(),
	), nil
}

// registerGet adds pattern to mux for GET only. ServeMux panics on invalid or
// conflicting patterns, that panic is returned as ErrRoute.
func registerGet(mux *http.ServeMux, pattern string, handler http.Handler) (err error) {
	if handler == nil {
		return fmt.Errorf("%w: %q has no handler", ErrRoute, pattern)
	}
	if !strings.HasPrefix(pattern, "/") {
		return fmt.Errorf("%w: %q must start with /", ErrRoute, pattern)
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %q: %v", ErrRoute, pattern, r)
		}
	}()

	mux.Handle(http.MethodGet+" "+pattern, handler)

	return nil
}
