package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/tlsbox/internal/artifacts"
	"github.com/wolfeidau/tlsbox/internal/pki"
	"github.com/wolfeidau/tlsbox/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// ErrListen is returned when the listener cannot be bound or the server stops with an error.
var ErrListen = errors.New("listen failed")

// Server is a running HTTPS server together with the credentials it was bootstrapped with.
type Server struct {
	cfg       Config
	authority *pki.Certificate
	leaf      *pki.Certificate
	caPaths   artifacts.Paths
	leafPaths artifacts.Paths

	httpServer *http.Server
	listener   net.Listener

	state    atomic.Int32
	done     chan struct{}
	errMu    sync.Mutex
	serveErr error
	stopOnce sync.Once
}

// Start generates a fresh root authority and a leaf for cfg.ServerHost,
// persists both, then serves cfg.Routes over HTTPS until ctx is cancelled or
// Shutdown is called. It returns once the listener is bound. Transitions,
// including failures, are reported to cfg.OnState.
func Start(ctx context.Context, cfg Config) (*Server, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "server.Start")
	defer span.End()

	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	logger := zerolog.Ctx(ctx).With().Str("project", cfg.Project).Logger()
	ctx = logger.WithContext(ctx)

	s := &Server{cfg: cfg, done: make(chan struct{})}

	if err := s.bootstrap(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.setState(StateCrashed)
		return nil, err
	}

	handler, err := buildHandler(cfg, logger)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		s.setState(StateCrashed)
		return nil, err
	}

	addr := net.JoinHostPort(cfg.LocalHost, strconv.Itoa(cfg.Port))

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		err = fmt.Errorf("%w: %s: %w", ErrListen, addr, err)
		span.SetStatus(codes.Error, err.Error())
		s.setState(StateCrashed)
		return nil, err
	}

	s.listener = ln
	s.httpServer = configureHTTPServer(addr, handler)
	s.httpServer.TLSConfig = &tls.Config{
		Certificates: []tls.Certificate{s.leaf.TLSCertificate()},
		MinVersion:   tls.VersionTLS12,
	}
	s.httpServer.ErrorLog = log.New(logger.With().Str("component", "http").Logger(), "", 0)
	s.httpServer.BaseContext = func(net.Listener) context.Context {
		return logger.WithContext(context.Background())
	}

	span.SetAttributes(attribute.String("addr", ln.Addr().String()))

	s.setState(StateListening)
	logger.Info().
		Str("addr", ln.Addr().String()).
		Str("server_host", cfg.ServerHost).
		Str("ca_cert", s.caPaths.Cert).
		Msg("Server listening")

	go s.serve(logger)
	go s.watch(ctx)

	return s, nil
}

func (s *Server) bootstrap(ctx context.Context) error {
	logger := zerolog.Ctx(ctx)

	dir := s.cfg.OutputDir
	if dir == "" {
		var err error
		if dir, err = artifacts.ExecutableDir(); err != nil {
			return err
		}
	}

	s.setState(StateGeneratingCA)
	logger.Info().Msg("Generating certificate authority")

	ca, err := pki.NewAuthority(ctx)
	if err != nil {
		return fmt.Errorf("failed to create certificate authority: %w", err)
	}

	if s.caPaths, err = artifacts.Write(ctx, ca, dir, s.cfg.caArtifact()); err != nil {
		return err
	}
	s.authority = ca

	s.setState(StateGeneratingLeaf)
	logger.Info().Str("server_host", s.cfg.ServerHost).Msg("Generating server certificate")

	leaf, err := pki.NewServerCertificate(ctx, s.cfg.Project, s.cfg.ServerHost, ca)
	if err != nil {
		return fmt.Errorf("failed to create server certificate: %w", err)
	}

	if s.leafPaths, err = artifacts.Write(ctx, leaf, dir, s.cfg.serverArtifact()); err != nil {
		return err
	}
	s.leaf = leaf

	return nil
}

func (s *Server) serve(logger zerolog.Logger) {
	defer close(s.done)

	err := s.httpServer.ServeTLS(s.listener, "", "")
	if errors.Is(err, http.ErrServerClosed) {
		s.setState(StateStopped)
		logger.Info().Msg("Server stopped")
		return
	}

	s.errMu.Lock()
	s.serveErr = fmt.Errorf("%w: %w", ErrListen, err)
	s.errMu.Unlock()

	s.setState(StateCrashed)
	logger.Error().Err(err).Msg("Server crashed")
}

// watch shuts the server down when ctx is cancelled.
func (s *Server) watch(ctx context.Context) {
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := s.Shutdown(shutdownCtx); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Msg("Graceful shutdown failed")
		}
	case <-s.done:
	}
}

func (s *Server) setState(state State) {
	s.state.Store(int32(state))
	if s.cfg.OnState != nil {
		s.cfg.OnState(state)
	}
}

// State reports the current lifecycle step.
func (s *Server) State() State {
	return State(s.state.Load())
}

// Addr is the address the listener is bound to.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// URL is the https base url of the server using ServerHost and the bound port.
func (s *Server) URL() string {
	_, port, _ := net.SplitHostPort(s.listener.Addr().String())
	return "https://" + net.JoinHostPort(s.cfg.ServerHost, port)
}

// Authority is the root certificate authority generated at startup.
func (s *Server) Authority() *pki.Certificate {
	return s.authority
}

// Leaf is the server certificate presented to clients.
func (s *Server) Leaf() *pki.Certificate {
	return s.leaf
}

// Artifacts returns the persisted key and certificate paths of the authority and the leaf.
func (s *Server) Artifacts() (ca, leaf artifacts.Paths) {
	return s.caPaths, s.leafPaths
}

// Done is closed once the server stops serving.
func (s *Server) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the server stops. It returns nil after a clean shutdown.
func (s *Server) Wait() error {
	<-s.done

	s.errMu.Lock()
	defer s.errMu.Unlock()

	return s.serveErr
}

// Shutdown stops accepting connections and waits for in flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.stopOnce.Do(func() {
		err = s.httpServer.Shutdown(ctx)
	})
	return err
}

// StartDetached runs Start and Wait in the background so a caller can carry
// on without waiting for the server. Any failure, at startup or while
// serving, is passed to cfg.Abort which defaults to a fatal log.
func StartDetached(ctx context.Context, cfg Config) {
	abort := cfg.Abort
	if abort == nil {
		abort = func(err error) {
			zerolog.Ctx(ctx).Fatal().Err(err).Msg("Detached server failed")
		}
	}

	go func() {
		s, err := Start(ctx, cfg)
		if err != nil {
			abort(err)
			return
		}

		if err := s.Wait(); err != nil {
			abort(err)
		}
	}()
}
