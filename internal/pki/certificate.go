package pki

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"time"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/tlsbox/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	// Organization is the fixed O= entry of every subject name.
	Organization = "tlsbox"

	// Validity is the lifetime of every certificate, counted from creation.
	Validity = 25 * 365 * 24 * time.Hour

	serialBits = 120
)

// now is swapped in tests.
var now = time.Now

// Certificate is a signed X.509 certificate together with the private key of
// its subject. The key never leaves the certificate it was generated for.
type Certificate struct {
	key  *rsa.PrivateKey
	cert *x509.Certificate
}

var _ CASigner = (*Certificate)(nil)

// PrivateKey returns the subject's private key.
func (c *Certificate) PrivateKey() *rsa.PrivateKey {
	return c.key
}

// X509 returns the parsed certificate.
func (c *Certificate) X509() *x509.Certificate {
	return c.cert
}

// DER returns the DER encoded certificate.
func (c *Certificate) DER() []byte {
	return c.cert.Raw
}

// TLSCertificate returns the certificate and key in the form crypto/tls expects.
func (c *Certificate) TLSCertificate() tls.Certificate {
	return tls.Certificate{
		Certificate: [][]byte{c.cert.Raw},
		PrivateKey:  c.key,
		Leaf:        c.cert,
	}
}

// SignCertificate signs template with this certificate's key. Only CA
// certificates can sign.
func (c *Certificate) SignCertificate(template *x509.Certificate) ([]byte, error) {
	if c.key == nil {
		return nil, ErrSigningKeyUnavailable
	}
	if !c.cert.IsCA {
		return nil, ErrNotAuthority
	}

	return x509.CreateCertificate(rand.Reader, template, c.cert, template.PublicKey, c.key)
}

// GetCACertificate returns the certificate used as the issuer of signed certificates.
func (c *Certificate) GetCACertificate() (*x509.Certificate, error) {
	return c.cert, nil
}

// descriptor is an unsigned certificate and the key generated for it.
type descriptor struct {
	key      *rsa.PrivateKey
	template *x509.Certificate
}

func newDescriptor(commonName string) (*descriptor, error) {
	key, err := GenerateKey()
	if err != nil {
		return nil, err
	}

	serial, err := randomSerial()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCertificateBuild, err)
	}

	// x509 validity is encoded with second precision
	notBefore := now().UTC().Truncate(time.Second)

	return &descriptor{
		key: key,
		template: &x509.Certificate{
			Version:            3,
			SerialNumber:       serial,
			NotBefore:          notBefore,
			NotAfter:           notBefore.Add(Validity),
			PublicKey:          &key.PublicKey,
			SignatureAlgorithm: x509.SHA256WithRSA,
			Subject: pkix.Name{
				Organization: []string{Organization},
				CommonName:   commonName,
			},
		},
	}, nil
}

// randomSerial draws a positive serial with exactly serialBits bits.
func randomSerial() (*big.Int, error) {
	limit := new(big.Int).Lsh(big.NewInt(1), serialBits)

	serial, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to generate serial number: %w", err)
	}

	return serial.SetBit(serial, serialBits-1, 1), nil
}

func (d *descriptor) applyExtensions(ctx context.Context, spec ExtensionSpec, issuer *x509.Certificate) {
	spec.apply(ctx, &extensionContext{subject: d.template, issuer: issuer})
}

// selfSign signs the descriptor with its own key, reading the finished
// subject back as the issuer name.
func (d *descriptor) selfSign() (*Certificate, error) {
	d.template.Issuer = d.template.Subject

	der, err := x509.CreateCertificate(rand.Reader, d.template, d.template, &d.key.PublicKey, d.key)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSigning, err)
	}

	return d.finish(der, nil)
}

// signWith asks issuer to sign the descriptor.
func (d *descriptor) signWith(issuer CASigner, issuerCert *x509.Certificate) (*Certificate, error) {
	d.template.Issuer = issuerCert.Subject

	der, err := issuer.SignCertificate(d.template)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSigning, err)
	}

	return d.finish(der, issuerCert)
}

func (d *descriptor) finish(der []byte, issuerCert *x509.Certificate) (*Certificate, error) {
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse signed certificate: %w", ErrSigning, err)
	}

	if issuerCert == nil {
		issuerCert = cert
	}

	if err := issuerCert.CheckSignature(cert.SignatureAlgorithm, cert.RawTBSCertificate, cert.Signature); err != nil {
		return nil, fmt.Errorf("%w: signature does not verify against issuer: %w", ErrSigning, err)
	}

	return &Certificate{key: d.key, cert: cert}, nil
}

// BuildSelfSigned creates a certificate that is its own issuer.
func BuildSelfSigned(ctx context.Context, commonName string, spec ExtensionSpec) (*Certificate, error) {
	d, err := newDescriptor(commonName)
	if err != nil {
		return nil, err
	}

	d.applyExtensions(ctx, spec, nil)

	cert, err := d.selfSign()
	if err != nil {
		recordSigningFailure(ctx, true)
		return nil, err
	}

	recordIssued(ctx, cert, true)
	return cert, nil
}

// Build creates a certificate for commonName signed by issuer.
func Build(ctx context.Context, commonName string, issuer CASigner, spec ExtensionSpec) (*Certificate, error) {
	if issuer == nil {
		return nil, fmt.Errorf("%w: %w", ErrSigning, ErrSigningKeyUnavailable)
	}

	issuerCert, err := issuer.GetCACertificate()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get issuer certificate: %w", ErrSigning, err)
	}

	d, err := newDescriptor(commonName)
	if err != nil {
		return nil, err
	}

	d.applyExtensions(ctx, spec, issuerCert)

	cert, err := d.signWith(issuer, issuerCert)
	if err != nil {
		recordSigningFailure(ctx, false)
		return nil, err
	}

	recordIssued(ctx, cert, false)
	return cert, nil
}

func recordIssued(ctx context.Context, cert *Certificate, selfSigned bool) {
	telemetry.GetMetrics().CertificatesIssuedTotal.Add(ctx, 1,
		metric.WithAttributes(attribute.Bool("self_signed", selfSigned)))

	zerolog.Ctx(ctx).Debug().
		Str("subject", cert.cert.Subject.String()).
		Str("issuer", cert.cert.Issuer.String()).
		Str("serial_number", cert.cert.SerialNumber.Text(16)).
		Time("not_after", cert.cert.NotAfter).
		Msg("Issued certificate")
}

func recordSigningFailure(ctx context.Context, selfSigned bool) {
	telemetry.GetMetrics().SigningErrorsTotal.Add(ctx, 1,
		metric.WithAttributes(attribute.Bool("self_signed", selfSigned)))
}
