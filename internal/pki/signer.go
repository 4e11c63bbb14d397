package pki

import (
	"crypto/x509"
)

// CASigner signs certificate templates on behalf of a certificate authority.
// Implementations include Certificate (an in-memory authority) and FileSigner
// (an authority reloaded from persisted artifacts).
type CASigner interface {
	// SignCertificate signs a certificate template and returns the DER-encoded certificate bytes.
	// The template must be fully populated, including PublicKey.
	SignCertificate(template *x509.Certificate) ([]byte, error)

	// GetCACertificate returns the CA certificate (public key only).
	// Its subject becomes the issuer name of every certificate it signs.
	GetCACertificate() (*x509.Certificate, error)
}
