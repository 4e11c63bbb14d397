package commands

import (
	"context"
	"crypto/x509"
	"fmt"
	"time"

	"github.com/wolfeidau/tlsbox/internal/artifacts"
	"github.com/wolfeidau/tlsbox/internal/probe"
)

type ProbeCmd struct {
	URL        string        `arg:"" help:"HTTPS url to probe, e.g. https://localhost:8443/ping"`
	CA         string        `help:"CA certificate to trust instead of the system roots" type:"existingfile" env:"TLSBOX_CA"`
	ServerName string        `help:"name to verify the server certificate against"`
	Timeout    time.Duration `help:"give up after this long" default:"30s"`
}

func (c *ProbeCmd) Run(ctx context.Context, globals *Globals) error {
	ctx, log := withLogger(ctx, globals)

	cfg := probe.Config{
		URL:        c.URL,
		ServerName: c.ServerName,
		MaxElapsed: c.Timeout,
	}

	if c.CA != "" {
		caCert, err := artifacts.LoadCertificate(c.CA)
		if err != nil {
			return fmt.Errorf("failed to load CA certificate: %w", err)
		}
		cfg.RootCAs = x509.NewCertPool()
		cfg.RootCAs.AddCert(caCert)
	}

	res, err := probe.Wait(ctx, cfg)
	if err != nil {
		return err
	}

	event := log.Info().Int("status", res.Status).Int("attempts", res.Attempts)
	if res.Peer != nil {
		event = event.Str("peer", res.Peer.Subject.String())
	}
	event.Msg("Endpoint is ready")

	return nil
}
