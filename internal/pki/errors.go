package pki

import (
	"errors"
	"fmt"
)

var (
	// ErrKeyGeneration is returned when a key pair cannot be generated.
	ErrKeyGeneration = errors.New("key generation failed")

	// ErrCertificateBuild is returned when a certificate descriptor cannot be assembled.
	ErrCertificateBuild = errors.New("certificate build failed")

	// ErrSigning is returned when the issuer fails to sign a descriptor.
	ErrSigning = errors.New("certificate signing failed")

	// ErrNotAuthority is returned when a certificate without CA:TRUE is asked to sign.
	ErrNotAuthority = errors.New("certificate is not a certificate authority")

	// ErrSigningKeyUnavailable is returned when the issuer has no private key to sign with.
	ErrSigningKeyUnavailable = errors.New("issuer private key unavailable")
)

// ExtensionError describes an extension that could not be resolved. Builders log
// and skip these rather than failing the certificate.
type ExtensionError struct {
	ID    ExtensionID
	Value string
	Err   error
}

func (e *ExtensionError) Error() string {
	return fmt.Sprintf("extension %s=%q: %v", e.ID, e.Value, e.Err)
}

func (e *ExtensionError) Unwrap() error {
	return e.Err
}
