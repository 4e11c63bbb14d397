package pki

import (
	"context"
	"crypto/x509"
	"errors"
	"math/big"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseExtensionValue(t *testing.T) {
	tests := []struct {
		value    string
		critical bool
		args     []string
	}{
		{value: "critical, CA:TRUE", critical: true, args: []string{"CA:TRUE"}},
		{value: "CA:FALSE", args: []string{"CA:FALSE"}},
		{value: "keyid:always, issuer:always", args: []string{"keyid:always", "issuer:always"}},
		{value: " , critical,,", critical: true},
		{value: ""},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			critical, args := parseExtensionValue(tt.value)
			require.Equal(t, tt.critical, critical)
			require.Equal(t, tt.args, args)
		})
	}
}

func newTestTemplate(t *testing.T) *x509.Certificate {
	t.Helper()

	key, err := GenerateKey()
	require.NoError(t, err)

	return &x509.Certificate{
		SerialNumber: big.NewInt(42),
		PublicKey:    &key.PublicKey,
	}
}

func TestExtensionSpec_apply(t *testing.T) {
	tmpl := newTestTemplate(t)

	spec := ExtensionSpec{
		{ID: ExtBasicConstraints, Value: "critical, CA:TRUE, pathlen:0"},
		{ID: ExtSubjectKeyID, Value: "hash"},
		{ID: ExtSubjectAltName, Value: "DNS:a.test, IP:127.0.0.1, email:ops@a.test, URI:spiffe://a.test/svc"},
		{ID: ExtExtendedKeyUsage, Value: "critical, serverAuth, clientAuth"},
	}

	skipped := spec.apply(context.Background(), &extensionContext{subject: tmpl})
	require.Empty(t, skipped)

	require.True(t, tmpl.IsCA)
	require.True(t, tmpl.MaxPathLenZero)
	require.Len(t, tmpl.SubjectKeyId, 20)
	require.Equal(t, []string{"a.test"}, tmpl.DNSNames)
	require.True(t, tmpl.IPAddresses[0].Equal(net.ParseIP("127.0.0.1")))
	require.Equal(t, []string{"ops@a.test"}, tmpl.EmailAddresses)
	require.Equal(t, "spiffe://a.test/svc", tmpl.URIs[0].String())
	require.Equal(t, []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth}, tmpl.ExtKeyUsage)

	require.Len(t, tmpl.ExtraExtensions, 1)
	require.True(t, tmpl.ExtraExtensions[0].Critical)
	require.True(t, tmpl.ExtraExtensions[0].Id.Equal(oidExtensionExtKeyUsage))
}

func TestExtensionSpec_applySkipped(t *testing.T) {
	tmpl := newTestTemplate(t)

	spec := ExtensionSpec{
		{ID: "1.2.3.4", Value: "whatever"},
		{ID: ExtBasicConstraints, Value: "CA:MAYBE"},
		{ID: ExtBasicConstraints, Value: "CA:FALSE, pathlen:1"},
		{ID: ExtSubjectKeyID, Value: "sha256"},
		{ID: ExtKeyUsage, Value: ""},
		{ID: ExtExtendedKeyUsage, Value: "anyThing"},
		{ID: ExtSubjectAltName, Value: "IP:not-an-ip"},
		{ID: ExtSubjectAltName, Value: "RID:1.2.3"},
		{ID: ExtAuthorityKeyID, Value: "keyid:sometimes"},
	}

	skipped := spec.apply(context.Background(), &extensionContext{subject: tmpl})
	require.Len(t, skipped, len(spec))

	for i, extErr := range skipped {
		require.Equal(t, spec[i].ID, extErr.ID)
		require.Equal(t, spec[i].Value, extErr.Value)
		require.Error(t, extErr.Err)
	}

	require.True(t, errors.Is(skipped[0], errUnsupportedExtension))
	require.False(t, tmpl.BasicConstraintsValid)
	require.Empty(t, tmpl.ExtraExtensions)
}

func TestResolveAuthorityKeyID(t *testing.T) {
	t.Run("keyid always without issuer key id", func(t *testing.T) {
		tmpl := newTestTemplate(t)
		issuer := newTestTemplate(t)

		err := resolveExtension(&extensionContext{subject: tmpl, issuer: issuer},
			Extension{ID: ExtAuthorityKeyID, Value: "keyid:always"})
		require.Error(t, err)
	})

	t.Run("falls back to issuer and serial", func(t *testing.T) {
		tmpl := newTestTemplate(t)
		issuer := newTestTemplate(t)

		err := resolveExtension(&extensionContext{subject: tmpl, issuer: issuer},
			Extension{ID: ExtAuthorityKeyID, Value: "keyid, issuer"})
		require.NoError(t, err)
		require.Nil(t, tmpl.AuthorityKeyId)
		require.Len(t, tmpl.ExtraExtensions, 1)
	})

	t.Run("self signed uses own key id", func(t *testing.T) {
		tmpl := newTestTemplate(t)
		ec := &extensionContext{subject: tmpl}

		skipped := ExtensionSpec{
			{ID: ExtSubjectKeyID, Value: "hash"},
			{ID: ExtAuthorityKeyID, Value: "keyid:always"},
		}.apply(context.Background(), ec)
		require.Empty(t, skipped)
		require.Equal(t, tmpl.SubjectKeyId, tmpl.AuthorityKeyId)
	})
}

func TestSubjectKeyID_stable(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)

	a, err := subjectKeyID(&key.PublicKey)
	require.NoError(t, err)
	b, err := subjectKeyID(&key.PublicKey)
	require.NoError(t, err)

	require.Equal(t, a, b)
	require.Len(t, a, 20)
}

func TestExtensionError(t *testing.T) {
	inner := errors.New("boom")
	err := &ExtensionError{ID: ExtKeyUsage, Value: "bad", Err: inner}

	require.ErrorIs(t, err, inner)
	require.Contains(t, err.Error(), "keyUsage")
	require.Contains(t, err.Error(), `"bad"`)
}
