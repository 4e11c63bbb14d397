package routes

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleRoutes = `
routes:
  - pattern: /ping
    body: pong
  - pattern: /version
    status: 203
    content_type: application/json
    body: '{"version":"1.0.0"}'
    headers:
      Cache-Control: no-store
`

func serve(t *testing.T, h http.Handler) *httptest.ResponseRecorder {
	t.Helper()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	return rec
}

func TestParse(t *testing.T) {
	routes, err := Parse([]byte(sampleRoutes))
	require.NoError(t, err)
	require.Len(t, routes, 2)

	rec := serve(t, routes["/ping"])
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "pong", rec.Body.String())
	require.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))

	rec = serve(t, routes["/version"])
	require.Equal(t, http.StatusNonAuthoritativeInfo, rec.Code)
	require.JSONEq(t, `{"version":"1.0.0"}`, rec.Body.String())
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
}

func TestParse_empty(t *testing.T) {
	routes, err := Parse(nil)
	require.NoError(t, err)
	require.Empty(t, routes)
}

func TestParse_invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		msg  string
	}{
		{name: "missing pattern", doc: "routes:\n  - body: x\n", msg: "pattern is required"},
		{name: "bad status", doc: "routes:\n  - pattern: /x\n    status: 700\n", msg: "invalid status"},
		{name: "informational status", doc: "routes:\n  - pattern: /x\n    status: 100\n", msg: "invalid status"},
		{name: "switching protocols", doc: "routes:\n  - pattern: /x\n    status: 101\n", msg: "invalid status"},
		{name: "below range", doc: "routes:\n  - pattern: /x\n    status: 199\n", msg: "invalid status"},
		{name: "duplicate", doc: "routes:\n  - pattern: /x\n  - pattern: /x\n", msg: "duplicate pattern"},
		{name: "unknown field", doc: "routes:\n  - pattern: /x\n    method: POST\n", msg: "method"},
		{name: "not yaml", doc: "routes: [", msg: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			require.Error(t, err)
			require.ErrorContains(t, err, tt.msg)
		})
	}
}

func TestParse_statusBounds(t *testing.T) {
	routes, err := Parse([]byte("routes:\n  - pattern: /ok\n    status: 200\n  - pattern: /oops\n    status: 599\n"))
	require.NoError(t, err)

	require.Equal(t, http.StatusOK, serve(t, routes["/ok"]).Code)
	require.Equal(t, 599, serve(t, routes["/oops"]).Code)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "routes.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleRoutes), 0o600))

	routes, err := Load(path)
	require.NoError(t, err)
	require.Contains(t, routes, "/version")

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorContains(t, err, "failed to read routes file")
}

func TestDefaults(t *testing.T) {
	routes := Defaults()

	require.Equal(t, "pong", serve(t, routes["/ping"]).Body.String())
	require.JSONEq(t, `{"status":"ok"}`, serve(t, routes["/healthz"]).Body.String())
}

func TestMerge(t *testing.T) {
	overrides, err := Parse([]byte("routes:\n  - pattern: /ping\n    body: custom\n"))
	require.NoError(t, err)

	merged := Merge(Defaults(), overrides)
	require.Len(t, merged, 2)
	require.Equal(t, "custom", serve(t, merged["/ping"]).Body.String())
	require.Contains(t, merged, "/healthz")
}
