package pki

import "context"

// AuthorityCommonName is the CN of the root certificate authority.
const AuthorityCommonName = "tlsbox"

// AuthorityExtensions is the extension profile of the self-signed root.
var AuthorityExtensions = ExtensionSpec{
	{ID: ExtBasicConstraints, Value: "critical, CA:TRUE"},
	{ID: ExtSubjectKeyID, Value: "hash"},
	{ID: ExtAuthorityKeyID, Value: "keyid:always, issuer:always"},
	{ID: ExtKeyUsage, Value: "critical, cRLSign, digitalSignature, keyCertSign"},
}

// ServerExtensions is the extension profile of a leaf bound to serverHost.
func ServerExtensions(serverHost string) ExtensionSpec {
	return ExtensionSpec{
		{ID: ExtBasicConstraints, Value: "critical, CA:FALSE"},
		{ID: ExtSubjectKeyID, Value: "hash"},
		{ID: ExtAuthorityKeyID, Value: "keyid:always, issuer:always"},
		{ID: ExtKeyUsage, Value: "critical, nonRepudiation, digitalSignature, keyEncipherment, keyAgreement"},
		{ID: ExtExtendedKeyUsage, Value: "serverAuth"},
		{ID: ExtSubjectAltName, Value: "DNS:" + serverHost},
	}
}

// NewAuthority creates the self-signed root certificate authority.
func NewAuthority(ctx context.Context) (*Certificate, error) {
	return BuildSelfSigned(ctx, AuthorityCommonName, AuthorityExtensions)
}

// NewServerCertificate creates a leaf for serverHost signed by issuer.
// commonName identifies the service the leaf belongs to.
func NewServerCertificate(ctx context.Context, commonName, serverHost string, issuer CASigner) (*Certificate, error) {
	return Build(ctx, commonName, issuer, ServerExtensions(serverHost))
}
