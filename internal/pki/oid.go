package pki

import (
	"crypto/x509"
	"encoding/asn1"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ExtensionID identifies a certificate extension by its dotted X.509 object identifier.
type ExtensionID string

// Extension identifiers understood by the builder.
const (
	ExtBasicConstraints ExtensionID = "2.5.29.19"
	ExtSubjectKeyID     ExtensionID = "2.5.29.14"
	ExtAuthorityKeyID   ExtensionID = "2.5.29.35"
	ExtKeyUsage         ExtensionID = "2.5.29.15"
	ExtExtendedKeyUsage ExtensionID = "2.5.29.37"
	ExtSubjectAltName   ExtensionID = "2.5.29.17"
)

var (
	oidExtensionAuthorityKeyID = asn1.ObjectIdentifier{2, 5, 29, 35}
	oidExtensionExtKeyUsage    = asn1.ObjectIdentifier{2, 5, 29, 37}

	extKeyUsageOIDs = map[x509.ExtKeyUsage]asn1.ObjectIdentifier{
		x509.ExtKeyUsageServerAuth:      {1, 3, 6, 1, 5, 5, 7, 3, 1},
		x509.ExtKeyUsageClientAuth:      {1, 3, 6, 1, 5, 5, 7, 3, 2},
		x509.ExtKeyUsageCodeSigning:     {1, 3, 6, 1, 5, 5, 7, 3, 3},
		x509.ExtKeyUsageEmailProtection: {1, 3, 6, 1, 5, 5, 7, 3, 4},
		x509.ExtKeyUsageTimeStamping:    {1, 3, 6, 1, 5, 5, 7, 3, 8},
		x509.ExtKeyUsageOCSPSigning:     {1, 3, 6, 1, 5, 5, 7, 3, 9},
	}
)

// ErrExtensionNotFound is returned when a certificate lacks the requested extension
var ErrExtensionNotFound = errors.New("extension not found")

var extensionNames = map[ExtensionID]string{
	ExtBasicConstraints: "basicConstraints",
	ExtSubjectKeyID:     "subjectKeyIdentifier",
	ExtAuthorityKeyID:   "authorityKeyIdentifier",
	ExtKeyUsage:         "keyUsage",
	ExtExtendedKeyUsage: "extendedKeyUsage",
	ExtSubjectAltName:   "subjectAltName",
}

// String returns the OpenSSL short name of the extension, falling back to the dotted OID.
func (id ExtensionID) String() string {
	if name, ok := extensionNames[id]; ok {
		return name
	}
	return string(id)
}

// OID parses the identifier into an asn1.ObjectIdentifier.
func (id ExtensionID) OID() (asn1.ObjectIdentifier, error) {
	parts := strings.Split(string(id), ".")
	if len(parts) < 2 {
		return nil, fmt.Errorf("invalid OID %q", string(id))
	}

	oid := make(asn1.ObjectIdentifier, 0, len(parts))
	for _, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid OID %q", string(id))
		}
		oid = append(oid, n)
	}
	return oid, nil
}

// FindExtension returns the raw value and criticality of the extension with the given identifier.
func FindExtension(cert *x509.Certificate, id ExtensionID) (value []byte, critical bool, err error) {
	oid, err := id.OID()
	if err != nil {
		return nil, false, err
	}

	for _, ext := range cert.Extensions {
		if ext.Id.Equal(oid) {
			return ext.Value, ext.Critical, nil
		}
	}
	return nil, false, ErrExtensionNotFound
}
