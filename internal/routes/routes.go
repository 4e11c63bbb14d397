// Package routes loads static GET routes from a YAML file.
package routes

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"

	"github.com/wolfeidau/tlsbox/internal/server"
	"gopkg.in/yaml.v3"
)

// File is the on disk layout of a routes file.
//
//	routes:
//	  - pattern: /ping
//	    body: pong
//	  - pattern: /version
//	    content_type: application/json
//	    body: '{"version":"1.0.0"}'
//	    headers:
//	      Cache-Control: no-store
type File struct {
	Routes []Route `yaml:"routes"`
}

// Route is a single static response.
type Route struct {
	Pattern     string            `yaml:"pattern"`
	Status      int               `yaml:"status"`
	ContentType string            `yaml:"content_type"`
	Body        string            `yaml:"body"`
	Headers     map[string]string `yaml:"headers"`
}

// Load reads and parses the routes file at path.
func Load(path string) (server.Routes, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read routes file: %w", err)
	}

	routes, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse routes file %s: %w", path, err)
	}

	return routes, nil
}

// Parse decodes a routes document. Unknown fields are rejected.
func Parse(data []byte) (server.Routes, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var file File
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	routes := make(server.Routes, len(file.Routes))
	for i, route := range file.Routes {
		if err := route.validate(); err != nil {
			return nil, fmt.Errorf("route %d: %w", i, err)
		}
		if _, ok := routes[route.Pattern]; ok {
			return nil, fmt.Errorf("route %d: duplicate pattern %q", i, route.Pattern)
		}
		routes[route.Pattern] = route.Handler()
	}

	return routes, nil
}

func (r Route) validate() error {
	if r.Pattern == "" {
		return errors.New("pattern is required")
	}
	// informational statuses cannot carry the body
	if r.Status != 0 && (r.Status < 200 || r.Status > 599) {
		return fmt.Errorf("invalid status %d, must be between 200 and 599", r.Status)
	}
	return nil
}

// Handler returns a handler that writes the configured response.
func (r Route) Handler() http.Handler {
	status := r.Status
	if status == 0 {
		status = http.StatusOK
	}

	contentType := r.ContentType
	if contentType == "" {
		contentType = "text/plain; charset=utf-8"
	}

	body := []byte(r.Body)
	headers := make(map[string]string, len(r.Headers))
	for k, v := range r.Headers {
		headers[k] = v
	}

	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		for k, v := range headers {
			w.Header().Set(k, v)
		}
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		w.WriteHeader(status)
		_, _ = w.Write(body)
	})
}

// Defaults are served when no routes file is given.
func Defaults() server.Routes {
	return server.Routes{
		"/ping":    Route{Pattern: "/ping", Body: "pong"}.Handler(),
		"/healthz": Route{Pattern: "/healthz", ContentType: "application/json", Body: `{"status":"ok"}`}.Handler(),
	}
}

// Merge returns a copy of base with every route in overrides applied on top.
func Merge(base server.Routes, overrides server.Routes) server.Routes {
	merged := make(server.Routes, len(base)+len(overrides))
	for pattern, handler := range base {
		merged[pattern] = handler
	}
	for pattern, handler := range overrides {
		merged[pattern] = handler
	}
	return merged
}
