package pki

import (
	"context"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writePEM(t *testing.T, path, blockType string, der []byte) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: der}), 0o600))
}

func writeKeyPair(t *testing.T, cert *Certificate) (keyPath, certPath string) {
	t.Helper()

	dir := t.TempDir()
	keyPath = filepath.Join(dir, "ca.key")
	certPath = filepath.Join(dir, "ca.crt")

	keyDER, err := x509.MarshalPKCS8PrivateKey(cert.PrivateKey())
	require.NoError(t, err)

	writePEM(t, keyPath, "PRIVATE KEY", keyDER)
	writePEM(t, certPath, "CERTIFICATE", cert.DER())

	return keyPath, certPath
}

func TestFileSigner(t *testing.T) {
	ca := newTestAuthority(t)
	keyPath, certPath := writeKeyPair(t, ca)

	signer, err := NewFileSigner(keyPath, certPath)
	require.NoError(t, err)

	caCert, err := signer.GetCACertificate()
	require.NoError(t, err)
	require.Equal(t, ca.DER(), caCert.Raw)

	leaf, err := NewServerCertificate(context.Background(), "tlsbox", "files.localhost", signer)
	require.NoError(t, err)
	require.NoError(t, leaf.X509().CheckSignatureFrom(ca.X509()))
	require.Equal(t, ca.X509().SubjectKeyId, leaf.X509().AuthorityKeyId)
}

func TestFileSigner_pkcs1(t *testing.T) {
	ca := newTestAuthority(t)
	_, certPath := writeKeyPair(t, ca)

	keyPath := filepath.Join(t.TempDir(), "ca.key")
	writePEM(t, keyPath, "RSA PRIVATE KEY", x509.MarshalPKCS1PrivateKey(ca.PrivateKey()))

	_, err := NewFileSigner(keyPath, certPath)
	require.NoError(t, err)
}

func TestFileSigner_mismatchedKey(t *testing.T) {
	ca := newTestAuthority(t)
	other := newTestAuthority(t)

	_, certPath := writeKeyPair(t, ca)
	otherKey, _ := writeKeyPair(t, other)

	_, err := NewFileSigner(otherKey, certPath)
	require.ErrorContains(t, err, "do not match")
}

func TestFileSigner_notAuthority(t *testing.T) {
	ca := newTestAuthority(t)

	leaf, err := NewServerCertificate(context.Background(), "tlsbox", "localhost", ca)
	require.NoError(t, err)

	keyPath, certPath := writeKeyPair(t, leaf)

	signer, err := NewFileSigner(keyPath, certPath)
	require.NoError(t, err)

	_, err = Build(context.Background(), "nested", signer, ServerExtensions("nested.localhost"))
	require.ErrorIs(t, err, ErrNotAuthority)
}

func TestFileSigner_missingFiles(t *testing.T) {
	dir := t.TempDir()

	_, err := NewFileSigner(filepath.Join(dir, "nope.key"), filepath.Join(dir, "nope.crt"))
	require.ErrorContains(t, err, "failed to read CA key file")
}

func TestParseCertificatePEM_wrongType(t *testing.T) {
	_, err := ParseCertificatePEM(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: []byte{1}}))
	require.ErrorContains(t, err, "unexpected PEM block type")

	_, err = ParsePrivateKeyPEM([]byte("not pem"))
	require.Error(t, err)
}
