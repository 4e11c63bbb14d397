package pki

import (
	"crypto/rand"
	"crypto/rsa"
	"fmt"
)

// KeyBits is the modulus size of every generated key. The public exponent is
// fixed at 65537 by crypto/rsa.
const KeyBits = 2048

// GenerateKey creates a new RSA key pair suitable for signing and TLS.
func GenerateKey() (*rsa.PrivateKey, error) {
	key, err := rsa.GenerateKey(rand.Reader, KeyBits)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrKeyGeneration, err)
	}

	return key, nil
}
