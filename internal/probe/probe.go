// Package probe waits for a TLS endpoint to become ready.
package probe

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
)

const (
	defaultMaxElapsed     = 30 * time.Second
	defaultRequestTimeout = 5 * time.Second
)

// ErrNotReady is returned when the endpoint did not answer with a 2xx status in time.
var ErrNotReady = errors.New("endpoint not ready")

// Config describes what to probe and which roots to trust.
type Config struct {
	URL string

	// RootCAs verifies the server certificate. Nil uses the system roots.
	RootCAs *x509.CertPool

	// ServerName overrides the name verified against the certificate.
	ServerName string

	// MaxElapsed bounds the total time spent retrying.
	MaxElapsed time.Duration

	// InitialInterval is the first retry delay; zero keeps the backoff default.
	InitialInterval time.Duration
}

// Result describes the successful attempt.
type Result struct {
	Status   int
	Attempts int
	Peer     *x509.Certificate
}

// Wait issues GET requests against cfg.URL with exponential backoff until one
// returns a 2xx status. Certificate verification failures are not retried.
func Wait(ctx context.Context, cfg Config) (*Result, error) {
	if cfg.URL == "" {
		return nil, errors.New("url is required")
	}

	maxElapsed := cfg.MaxElapsed
	if maxElapsed == 0 {
		maxElapsed = defaultMaxElapsed
	}

	client := &http.Client{
		Timeout: defaultRequestTimeout,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				RootCAs:    cfg.RootCAs,
				ServerName: cfg.ServerName,
				MinVersion: tls.VersionTLS12,
			},
		},
	}
	defer client.CloseIdleConnections()

	logger := zerolog.Ctx(ctx).With().Str("url", cfg.URL).Logger()

	attempts := 0
	operation := func() (*Result, error) {
		attempts++

		res, err := get(ctx, client, cfg.URL)
		if err != nil {
			var verifyErr *tls.CertificateVerificationError
			if errors.As(err, &verifyErr) {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}

		res.Attempts = attempts
		return res, nil
	}

	bo := backoff.NewExponentialBackOff()
	if cfg.InitialInterval > 0 {
		bo.InitialInterval = cfg.InitialInterval
	}

	res, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(bo),
		backoff.WithMaxElapsedTime(maxElapsed),
		backoff.WithNotify(func(err error, next time.Duration) {
			logger.Debug().Err(err).Dur("next_retry", next).Msg("Endpoint not ready, will retry")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("%w after %d attempts: %w", ErrNotReady, attempts, err)
	}

	logger.Info().Int("status", res.Status).Int("attempts", res.Attempts).Msg("Endpoint ready")

	return res, nil
}

func get(ctx context.Context, client *http.Client, url string) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	res := &Result{Status: resp.StatusCode}
	if resp.TLS != nil && len(resp.TLS.PeerCertificates) > 0 {
		res.Peer = resp.TLS.PeerCertificates[0]
	}

	return res, nil
}
