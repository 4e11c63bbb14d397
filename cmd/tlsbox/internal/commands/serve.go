package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/wolfeidau/tlsbox/internal/routes"
	"github.com/wolfeidau/tlsbox/internal/server"
	"github.com/wolfeidau/tlsbox/internal/telemetry"
)

type ServeCmd struct {
	LocalHost  string `help:"address the listener binds to" default:"localhost" env:"TLSBOX_LOCAL_HOST"`
	Port       int    `help:"port the listener binds to, 0 picks a free port" default:"8443" env:"TLSBOX_PORT"`
	ServerHost string `help:"DNS name bound into the server certificate" default:"localhost" env:"TLSBOX_SERVER_HOST"`
	Project    string `help:"prefix of the generated artifacts and server common name" default:"tlsbox" env:"TLSBOX_PROJECT"`
	OutputDir  string `help:"directory receiving keys and certificates, defaults to the executable directory" env:"TLSBOX_OUTPUT_DIR"`

	Routes      string   `help:"YAML file of static GET routes, merged over /ping and /healthz" type:"existingfile" env:"TLSBOX_ROUTES"`
	CORSOrigins []string `help:"allowed CORS origins" env:"TLSBOX_CORS_ORIGINS"`
	Compress    bool     `help:"gzip responses" default:"false" env:"TLSBOX_COMPRESS"`

	Detached bool `help:"start the server in the background and abort the process on failure" default:"false" env:"TLSBOX_DETACHED"`
	Tracing  bool `help:"enable tracing" default:"false" env:"TLSBOX_TRACING"`
}

func (c *ServeCmd) Run(ctx context.Context, globals *Globals) error {
	ctx, log := withLogger(ctx, globals)

	if c.Tracing {
		shutdown, err := telemetry.InitTelemetry(ctx, "tlsbox", globals.Version)
		if err != nil {
			return fmt.Errorf("failed to initialize telemetry: %w", err)
		}
		defer func() {
			if err := shutdown(context.WithoutCancel(ctx)); err != nil {
				log.Error().Err(err).Msg("Failed to shutdown telemetry")
			}
		}()
	}

	cfg, err := c.config()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if c.Detached {
		cfg.OnState = func(state server.State) {
			log.Info().Str("state", state.String()).Msg("Server state changed")
		}
		server.StartDetached(ctx, cfg)
		log.Info().Msg("Server starting in the background, press Ctrl+C to stop")
		<-ctx.Done()
		return nil
	}

	srv, err := server.Start(ctx, cfg)
	if err != nil {
		return err
	}

	caPaths, _ := srv.Artifacts()
	log.Info().
		Str("url", srv.URL()).
		Str("ca_cert", caPaths.Cert).
		Msg("Trust the CA certificate to connect")

	return srv.Wait()
}

func (c *ServeCmd) config() (server.Config, error) {
	table := routes.Defaults()
	if c.Routes != "" {
		custom, err := routes.Load(c.Routes)
		if err != nil {
			return server.Config{}, err
		}
		table = routes.Merge(table, custom)
	}

	return server.Config{
		LocalHost:   c.LocalHost,
		Port:        c.Port,
		ServerHost:  c.ServerHost,
		Project:     c.Project,
		OutputDir:   c.OutputDir,
		Routes:      table,
		CORSOrigins: c.CORSOrigins,
		Compress:    c.Compress,
	}, nil
}
