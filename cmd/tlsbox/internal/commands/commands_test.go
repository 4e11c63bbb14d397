package commands

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/tlsbox/internal/artifacts"
	"github.com/wolfeidau/tlsbox/internal/pki"
)

func writeAuthority(t *testing.T, dir, name string) artifacts.Paths {
	t.Helper()

	ca, err := pki.NewAuthority(context.Background())
	require.NoError(t, err)

	paths, err := artifacts.Write(context.Background(), ca, dir, name)
	require.NoError(t, err)
	return paths
}

func TestIssueCmd(t *testing.T) {
	dir := t.TempDir()
	caPaths := writeAuthority(t, dir, "tlsbox.ca")

	cmd := &IssueCmd{Host: "api.localhost", Project: "tlsbox", OutputDir: dir}

	paths, err := cmd.issue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "tlsbox.api.localhost.crt"), paths.Cert)

	report, err := inspectCertificate(paths.Cert, caPaths.Cert, 30*24*time.Hour)
	require.NoError(t, err)
	assert.True(t, report.Verified)
	assert.Equal(t, []string{"api.localhost"}, report.DNSNames)
	assert.False(t, report.IsCA)

	_, err = cmd.issue(context.Background())
	require.ErrorContains(t, err, "already exists")

	cmd.Force = true
	_, err = cmd.issue(context.Background())
	require.NoError(t, err)
}

func TestIssueCmd_reservedNames(t *testing.T) {
	tests := []struct {
		name string
		cmd  IssueCmd
	}{
		{name: "host collides with ca", cmd: IssueCmd{Host: "ca", Force: true}},
		{name: "host collides with server", cmd: IssueCmd{Host: "server", Force: true}},
		{name: "explicit ca name", cmd: IssueCmd{Host: "api.localhost", Name: "tlsbox.ca", Force: true}},
		{name: "explicit server name", cmd: IssueCmd{Host: "api.localhost", Name: "tlsbox.server", Force: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			caPaths := writeAuthority(t, dir, "tlsbox.ca")

			before, err := os.ReadFile(caPaths.Cert)
			require.NoError(t, err)

			cmd := tt.cmd
			cmd.Project = "tlsbox"
			cmd.OutputDir = dir

			_, err = cmd.issue(context.Background())
			require.ErrorContains(t, err, "reserved")

			after, err := os.ReadFile(caPaths.Cert)
			require.NoError(t, err)
			assert.Equal(t, before, after)

			_, err = os.Stat(filepath.Join(dir, "tlsbox.server.crt"))
			assert.ErrorIs(t, err, os.ErrNotExist)

			signer, err := artifacts.LoadSigner(caPaths)
			require.NoError(t, err)
			caCert, err := signer.GetCACertificate()
			require.NoError(t, err)
			assert.True(t, caCert.IsCA)
		})
	}
}

func TestIssueCmd_missingCA(t *testing.T) {
	cmd := &IssueCmd{Host: "api.localhost", Project: "tlsbox", OutputDir: t.TempDir()}

	_, err := cmd.issue(context.Background())
	require.ErrorContains(t, err, "failed to load CA")
}

func TestInspectCertificate(t *testing.T) {
	dir := t.TempDir()
	caPaths := writeAuthority(t, dir, "a.ca")
	otherPaths := writeAuthority(t, dir, "b.ca")

	report, err := inspectCertificate(caPaths.Cert, "", 30*24*time.Hour)
	require.NoError(t, err)
	assert.True(t, report.IsCA)
	assert.False(t, report.Expired)
	assert.False(t, report.ShouldRotate)
	assert.Greater(t, report.DaysRemaining, 9000)
	assert.False(t, report.Verified)

	report, err = inspectCertificate(caPaths.Cert, otherPaths.Cert, 30*24*time.Hour)
	require.NoError(t, err)
	assert.False(t, report.Verified)
	assert.Error(t, report.VerifyError)

	// a threshold beyond the lifetime flags rotation
	report, err = inspectCertificate(caPaths.Cert, "", pki.Validity+time.Hour)
	require.NoError(t, err)
	assert.True(t, report.ShouldRotate)
	assert.False(t, report.Expired)
}

func TestServeCmd_config(t *testing.T) {
	path := filepath.Join(t.TempDir(), "routes.yaml")
	require.NoError(t, os.WriteFile(path, []byte("routes:\n  - pattern: /version\n    body: v1\n"), 0o600))

	cmd := &ServeCmd{
		LocalHost:  "127.0.0.1",
		Port:       9443,
		ServerHost: "localhost",
		Project:    "demo",
		Routes:     path,
		Compress:   true,
	}

	cfg, err := cmd.config()
	require.NoError(t, err)
	assert.Equal(t, "demo", cfg.Project)
	assert.True(t, cfg.Compress)
	require.Contains(t, cfg.Routes, "/ping")
	require.Contains(t, cfg.Routes, "/healthz")
	require.Contains(t, cfg.Routes, "/version")

	rec := httptest.NewRecorder()
	cfg.Routes["/version"].ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/version", nil))
	assert.Equal(t, "v1", rec.Body.String())
}
