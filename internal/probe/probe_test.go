package probe

import (
	"context"
	"crypto/x509"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func tlsServer(t *testing.T, h http.HandlerFunc) (*httptest.Server, *x509.CertPool) {
	t.Helper()

	srv := httptest.NewTLSServer(h)
	t.Cleanup(srv.Close)

	pool := x509.NewCertPool()
	pool.AddCert(srv.Certificate())

	return srv, pool
}

func TestWait(t *testing.T) {
	var calls atomic.Int32

	srv, pool := tlsServer(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("pong"))
	})

	res, err := Wait(context.Background(), Config{
		URL:             srv.URL + "/ping",
		RootCAs:         pool,
		InitialInterval: 10 * time.Millisecond,
		MaxElapsed:      10 * time.Second,
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, res.Status)
	require.Equal(t, 3, res.Attempts)
	require.Equal(t, srv.Certificate().Raw, res.Peer.Raw)
}

func TestWait_untrusted(t *testing.T) {
	var calls atomic.Int32

	srv, _ := tlsServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	})

	_, err := Wait(context.Background(), Config{
		URL:             srv.URL,
		RootCAs:         x509.NewCertPool(),
		InitialInterval: 10 * time.Millisecond,
		MaxElapsed:      10 * time.Second,
	})
	require.ErrorIs(t, err, ErrNotReady)
	require.ErrorContains(t, err, "after 1 attempts")
	require.Zero(t, calls.Load())
}

func TestWait_timeout(t *testing.T) {
	srv, pool := tlsServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := Wait(context.Background(), Config{
		URL:             srv.URL,
		RootCAs:         pool,
		InitialInterval: 10 * time.Millisecond,
		MaxElapsed:      200 * time.Millisecond,
	})
	require.ErrorIs(t, err, ErrNotReady)
	require.ErrorContains(t, err, "unexpected status 500")
}

func TestWait_cancelled(t *testing.T) {
	srv, pool := tlsServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Wait(ctx, Config{URL: srv.URL, RootCAs: pool})
	require.ErrorIs(t, err, ErrNotReady)
}

func TestWait_missingURL(t *testing.T) {
	_, err := Wait(context.Background(), Config{})
	require.Error(t, err)
}
