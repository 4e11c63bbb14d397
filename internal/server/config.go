package server

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

const (
	// DefaultProject prefixes the persisted artifact names.
	DefaultProject = "tlsbox"

	// CAArtifact and ServerArtifact are appended to the project name to form
	// the artifact names, e.g. tlsbox.ca.crt and tlsbox.server.key.
	CAArtifact     = "ca"
	ServerArtifact = "server"

	shutdownTimeout = 5 * time.Second
)

// Routes maps a path pattern to the handler serving GET requests for it.
// Patterns use net/http.ServeMux syntax without the method, e.g. "/ping" or "/files/{name}".
type Routes map[string]http.Handler

// Config describes one bootstrap.
type Config struct {
	// LocalHost and Port are the address the listener binds to. Port 0 picks a free port.
	LocalHost string
	Port      int

	// ServerHost is the DNS name bound into the leaf certificate.
	ServerHost string

	// Project prefixes artifact names and is the leaf's common name.
	Project string

	// OutputDir receives the artifacts; empty means the executable's directory.
	OutputDir string

	Routes Routes

	// CORSOrigins enables CORS for the listed origins when not empty.
	CORSOrigins []string

	// Compress enables gzip responses.
	Compress bool

	// Abort receives any failure of a detached server. Defaults to a fatal log.
	Abort func(error)

	// OnState is called on every lifecycle transition, including the ones
	// that happen before Start returns and the final stopped or crashed
	// state. It may be called from the serving goroutine.
	OnState func(State)
}

func (c Config) withDefaults() Config {
	if c.Project == "" {
		c.Project = DefaultProject
	}
	return c
}

func (c Config) validate() error {
	if c.ServerHost == "" {
		return errors.New("server host is required")
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	return nil
}

func (c Config) caArtifact() string {
	return c.Project + "." + CAArtifact
}

func (c Config) serverArtifact() string {
	return c.Project + "." + ServerArtifact
}

func configureHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Minute,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       5 * time.Minute,
		MaxHeaderBytes:    8 * 1024, // 8KiB
	}
}
