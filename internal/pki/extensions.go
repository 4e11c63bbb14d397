package pki

import (
	"context"
	"crypto/sha1" // #nosec G505 - RFC 5280 key identifier, not used for integrity
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"errors"
	"fmt"
	"math/big"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/tlsbox/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Extension is a single extension request, expressed the way an OpenSSL config
// would: an identifier and a value string such as "critical, CA:TRUE".
type Extension struct {
	ID    ExtensionID
	Value string
}

// ExtensionSpec is an ordered list of extensions. Order matters: an authority
// key identifier on a self-signed certificate needs the subject key identifier
// to have been resolved first.
type ExtensionSpec []Extension

// extensionContext gives resolvers access to both sides of the signature.
type extensionContext struct {
	subject *x509.Certificate
	issuer  *x509.Certificate // nil while self-signing
}

func (ec *extensionContext) issuerCert() *x509.Certificate {
	if ec.issuer == nil {
		return ec.subject
	}
	return ec.issuer
}

type resolver func(ec *extensionContext, critical bool, args []string) error

var resolvers = map[ExtensionID]resolver{
	ExtBasicConstraints: resolveBasicConstraints,
	ExtSubjectKeyID:     resolveSubjectKeyID,
	ExtAuthorityKeyID:   resolveAuthorityKeyID,
	ExtKeyUsage:         resolveKeyUsage,
	ExtExtendedKeyUsage: resolveExtKeyUsage,
	ExtSubjectAltName:   resolveSubjectAltName,
}

var errUnsupportedExtension = errors.New("unsupported extension")

// apply resolves each extension onto ec.subject. Extensions that fail are
// skipped and returned so the caller can report them.
func (spec ExtensionSpec) apply(ctx context.Context, ec *extensionContext) []*ExtensionError {
	var skipped []*ExtensionError

	for _, ext := range spec {
		err := resolveExtension(ec, ext)
		if err == nil {
			continue
		}

		extErr := &ExtensionError{ID: ext.ID, Value: ext.Value, Err: err}
		skipped = append(skipped, extErr)

		zerolog.Ctx(ctx).Warn().
			Err(err).
			Str("extension", ext.ID.String()).
			Str("value", ext.Value).
			Msg("Skipping extension that could not be resolved")

		telemetry.GetMetrics().ExtensionsSkippedTotal.Add(ctx, 1,
			metric.WithAttributes(attribute.String("extension", ext.ID.String())))
	}

	return skipped
}

func resolveExtension(ec *extensionContext, ext Extension) error {
	resolve, ok := resolvers[ext.ID]
	if !ok {
		return errUnsupportedExtension
	}

	critical, args := parseExtensionValue(ext.Value)
	if len(args) == 0 {
		return errors.New("empty value")
	}

	return resolve(ec, critical, args)
}

// parseExtensionValue splits "critical, a, b" into the critical flag and the remaining arguments.
func parseExtensionValue(value string) (bool, []string) {
	var (
		critical bool
		args     []string
	)

	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		switch {
		case part == "":
			continue
		case strings.EqualFold(part, "critical"):
			critical = true
		default:
			args = append(args, part)
		}
	}

	return critical, args
}

// basicConstraints is always encoded critical by crypto/x509.
func resolveBasicConstraints(ec *extensionContext, _ bool, args []string) error {
	var (
		isCA    bool
		seenCA  bool
		pathLen = -1
	)

	for _, arg := range args {
		name, value, ok := strings.Cut(arg, ":")
		if !ok {
			return fmt.Errorf("malformed argument %q", arg)
		}

		switch strings.ToUpper(strings.TrimSpace(name)) {
		case "CA":
			switch strings.ToUpper(strings.TrimSpace(value)) {
			case "TRUE":
				isCA = true
			case "FALSE":
				isCA = false
			default:
				return fmt.Errorf("invalid CA value %q", value)
			}
			seenCA = true
		case "PATHLEN":
			n, err := strconv.Atoi(strings.TrimSpace(value))
			if err != nil || n < 0 {
				return fmt.Errorf("invalid pathlen %q", value)
			}
			pathLen = n
		default:
			return fmt.Errorf("unknown argument %q", name)
		}
	}

	if !seenCA {
		return errors.New("missing CA flag")
	}
	if pathLen >= 0 && !isCA {
		return errors.New("pathlen requires CA:TRUE")
	}

	ec.subject.BasicConstraintsValid = true
	ec.subject.IsCA = isCA
	if pathLen >= 0 {
		ec.subject.MaxPathLen = pathLen
		ec.subject.MaxPathLenZero = pathLen == 0
	}

	return nil
}

func resolveSubjectKeyID(ec *extensionContext, _ bool, args []string) error {
	if len(args) != 1 || args[0] != "hash" {
		return fmt.Errorf("unsupported value %q", strings.Join(args, ","))
	}

	keyID, err := subjectKeyID(ec.subject.PublicKey)
	if err != nil {
		return err
	}

	ec.subject.SubjectKeyId = keyID
	return nil
}

// subjectKeyID hashes the subjectPublicKey BIT STRING with SHA-1 (RFC 5280 4.2.1.2, method 1).
func subjectKeyID(pub any) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal public key: %w", err)
	}

	var spki struct {
		Algorithm pkix.AlgorithmIdentifier
		PublicKey asn1.BitString
	}
	if _, err := asn1.Unmarshal(der, &spki); err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}

	sum := sha1.Sum(spki.PublicKey.Bytes) // #nosec G401
	return sum[:], nil
}

// authorityKeyID mirrors the AuthorityKeyIdentifier SEQUENCE from RFC 5280 4.2.1.1.
type authorityKeyID struct {
	KeyID  []byte        `asn1:"optional,tag:0"`
	Issuer asn1.RawValue `asn1:"optional"`
	Serial *big.Int      `asn1:"optional,tag:2"`
}

func resolveAuthorityKeyID(ec *extensionContext, critical bool, args []string) error {
	var (
		wantKeyID, keyIDAlways   bool
		wantIssuer, issuerAlways bool
	)

	for _, arg := range args {
		name, qualifier, _ := strings.Cut(arg, ":")
		always := strings.TrimSpace(qualifier) == "always"
		if qualifier != "" && !always {
			return fmt.Errorf("unknown qualifier %q", qualifier)
		}

		switch strings.TrimSpace(name) {
		case "keyid":
			wantKeyID, keyIDAlways = true, always
		case "issuer":
			wantIssuer, issuerAlways = true, always
		default:
			return fmt.Errorf("unknown argument %q", name)
		}
	}

	issuer := ec.issuerCert()
	aki := authorityKeyID{}

	if wantKeyID {
		if len(issuer.SubjectKeyId) > 0 {
			aki.KeyID = issuer.SubjectKeyId
		} else if keyIDAlways {
			return errors.New("issuer has no subject key identifier")
		}
	}

	// issuer is only added when forced, or when no key id could be used
	if issuerAlways || (wantIssuer && aki.KeyID == nil) {
		if issuer.SerialNumber == nil {
			return errors.New("issuer has no serial number")
		}

		name, err := rawSubject(issuer)
		if err != nil {
			return err
		}

		directoryName, err := asn1.Marshal(asn1.RawValue{
			Class:      asn1.ClassContextSpecific,
			Tag:        4,
			IsCompound: true,
			Bytes:      name,
		})
		if err != nil {
			return fmt.Errorf("failed to encode issuer name: %w", err)
		}

		aki.Issuer = asn1.RawValue{
			Class:      asn1.ClassContextSpecific,
			Tag:        1,
			IsCompound: true,
			Bytes:      directoryName,
		}
		aki.Serial = issuer.SerialNumber
	}

	if aki.KeyID == nil && aki.Serial == nil {
		return errors.New("no key identifier or issuer available")
	}

	value, err := asn1.Marshal(aki)
	if err != nil {
		return fmt.Errorf("failed to encode authority key identifier: %w", err)
	}

	ec.subject.AuthorityKeyId = aki.KeyID
	ec.subject.ExtraExtensions = append(ec.subject.ExtraExtensions, pkix.Extension{
		Id:       oidExtensionAuthorityKeyID,
		Critical: critical,
		Value:    value,
	})

	return nil
}

// rawSubject returns the DER subject exactly as crypto/x509 would encode it.
func rawSubject(cert *x509.Certificate) ([]byte, error) {
	if len(cert.RawSubject) > 0 {
		return cert.RawSubject, nil
	}

	name, err := asn1.Marshal(cert.Subject.ToRDNSequence())
	if err != nil {
		return nil, fmt.Errorf("failed to encode subject: %w", err)
	}
	return name, nil
}

var keyUsageNames = map[string]x509.KeyUsage{
	"digitalSignature": x509.KeyUsageDigitalSignature,
	"nonRepudiation":   x509.KeyUsageContentCommitment,
	"keyEncipherment":  x509.KeyUsageKeyEncipherment,
	"dataEncipherment": x509.KeyUsageDataEncipherment,
	"keyAgreement":     x509.KeyUsageKeyAgreement,
	"keyCertSign":      x509.KeyUsageCertSign,
	"cRLSign":          x509.KeyUsageCRLSign,
	"encipherOnly":     x509.KeyUsageEncipherOnly,
	"decipherOnly":     x509.KeyUsageDecipherOnly,
}

// keyUsage is always encoded critical by crypto/x509.
func resolveKeyUsage(ec *extensionContext, _ bool, args []string) error {
	var usage x509.KeyUsage

	for _, arg := range args {
		bit, ok := keyUsageNames[arg]
		if !ok {
			return fmt.Errorf("unknown key usage %q", arg)
		}
		usage |= bit
	}

	ec.subject.KeyUsage |= usage
	return nil
}

var extKeyUsageNames = map[string]x509.ExtKeyUsage{
	"serverAuth":      x509.ExtKeyUsageServerAuth,
	"clientAuth":      x509.ExtKeyUsageClientAuth,
	"codeSigning":     x509.ExtKeyUsageCodeSigning,
	"emailProtection": x509.ExtKeyUsageEmailProtection,
	"timeStamping":    x509.ExtKeyUsageTimeStamping,
	"OCSPSigning":     x509.ExtKeyUsageOCSPSigning,
}

func resolveExtKeyUsage(ec *extensionContext, critical bool, args []string) error {
	usages := make([]x509.ExtKeyUsage, 0, len(args))
	oids := make([]asn1.ObjectIdentifier, 0, len(args))

	for _, arg := range args {
		usage, ok := extKeyUsageNames[arg]
		if !ok {
			return fmt.Errorf("unknown extended key usage %q", arg)
		}
		usages = append(usages, usage)
		oids = append(oids, extKeyUsageOIDs[usage])
	}

	// crypto/x509 only emits a non-critical EKU, so a critical one is spelled out
	if critical {
		value, err := asn1.Marshal(oids)
		if err != nil {
			return fmt.Errorf("failed to encode extended key usage: %w", err)
		}
		ec.subject.ExtraExtensions = append(ec.subject.ExtraExtensions, pkix.Extension{
			Id:       oidExtensionExtKeyUsage,
			Critical: true,
			Value:    value,
		})
	}

	ec.subject.ExtKeyUsage = append(ec.subject.ExtKeyUsage, usages...)
	return nil
}

func resolveSubjectAltName(ec *extensionContext, _ bool, args []string) error {
	var (
		dnsNames []string
		ips      []net.IP
		emails   []string
		uris     []*url.URL
	)

	for _, arg := range args {
		kind, value, ok := strings.Cut(arg, ":")
		value = strings.TrimSpace(value)
		if !ok || value == "" {
			return fmt.Errorf("malformed name %q", arg)
		}

		switch strings.ToUpper(strings.TrimSpace(kind)) {
		case "DNS":
			dnsNames = append(dnsNames, value)
		case "IP":
			ip := net.ParseIP(value)
			if ip == nil {
				return fmt.Errorf("invalid IP address %q", value)
			}
			ips = append(ips, ip)
		case "EMAIL":
			emails = append(emails, value)
		case "URI":
			u, err := url.Parse(value)
			if err != nil {
				return fmt.Errorf("invalid URI %q: %w", value, err)
			}
			uris = append(uris, u)
		default:
			return fmt.Errorf("unsupported name type %q", kind)
		}
	}

	ec.subject.DNSNames = append(ec.subject.DNSNames, dnsNames...)
	ec.subject.IPAddresses = append(ec.subject.IPAddresses, ips...)
	ec.subject.EmailAddresses = append(ec.subject.EmailAddresses, emails...)
	ec.subject.URIs = append(ec.subject.URIs, uris...)

	return nil
}
