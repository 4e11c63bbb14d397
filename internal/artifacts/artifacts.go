// Package artifacts persists certificate key pairs as PEM files.
package artifacts

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/tlsbox/internal/pki"
	"github.com/wolfeidau/tlsbox/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	KeyExtension  = "key"
	CertExtension = "crt"

	fileMode = 0o600
)

// ErrEncoding is returned when a key or certificate cannot be serialized.
var ErrEncoding = errors.New("encoding failed")

// IOError reports a failure to open or write an artifact file.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// Paths holds the locations of a persisted key pair.
type Paths struct {
	Key  string
	Cert string
}

// PathsFor returns the key and certificate paths for name inside dir.
func PathsFor(dir, name string) Paths {
	return Paths{
		Key:  filepath.Join(dir, name+"."+KeyExtension),
		Cert: filepath.Join(dir, name+"."+CertExtension),
	}
}

// ExecutableDir returns the directory containing the running executable.
func ExecutableDir() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("failed to locate executable: %w", err)
	}

	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}

	return filepath.Dir(exe), nil
}

// Write persists the private key and certificate of cert as <dir>/<name>.key
// and <dir>/<name>.crt. An empty dir means the executable's directory.
//
// The key is written first. If writing the key fails after its file was
// opened, or the certificate fails, the key file is removed again so a pair
// is never left half written.
func Write(ctx context.Context, cert *pki.Certificate, dir, name string) (Paths, error) {
	if dir == "" {
		var err error
		if dir, err = ExecutableDir(); err != nil {
			return Paths{}, err
		}
	}

	paths := PathsFor(dir, name)

	keyDER, err := x509.MarshalPKCS8PrivateKey(cert.PrivateKey())
	if err != nil {
		return Paths{}, fmt.Errorf("%w: private key: %w", ErrEncoding, err)
	}

	err = writePair(ctx, paths,
		func(w io.Writer) error {
			return pem.Encode(w, &pem.Block{Type: "PRIVATE KEY", Bytes: keyDER})
		},
		func(w io.Writer) error {
			return pem.Encode(w, &pem.Block{Type: "CERTIFICATE", Bytes: cert.DER()})
		},
	)
	if err != nil {
		return Paths{}, err
	}

	return paths, nil
}

// writePair writes the key then the certificate. Any failure after the key
// file was opened removes it again, so a truncated or orphaned key is never left.
func writePair(ctx context.Context, paths Paths, encodeKey, encodeCert func(io.Writer) error) error {
	if err := writeFile(ctx, paths.Key, encodeKey); err != nil {
		var ioErr *IOError
		if errors.As(err, &ioErr) && ioErr.Op != "open" {
			removeFile(ctx, paths.Key)
		}
		return err
	}

	if err := writeFile(ctx, paths.Cert, encodeCert); err != nil {
		removeFile(ctx, paths.Key)
		return err
	}

	return nil
}

func removeFile(ctx context.Context, path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		zerolog.Ctx(ctx).Warn().Err(err).Str("path", path).Msg("Failed to remove orphaned key file")
	}
}

// writeFile opens path, hands it to encode and always closes it again.
func writeFile(ctx context.Context, path string, encode func(io.Writer) error) (err error) {
	zerolog.Ctx(ctx).Debug().Str("path", path).Msg("Writing artifact")

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, fileMode)
	if err != nil {
		return &IOError{Op: "open", Path: path, Err: err}
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = &IOError{Op: "close", Path: path, Err: closeErr}
		}
	}()

	if err := encode(f); err != nil {
		return &IOError{Op: "write", Path: path, Err: err}
	}

	telemetry.GetMetrics().ArtifactsWrittenTotal.Add(ctx, 1,
		metric.WithAttributes(attribute.String("type", filepath.Ext(path))))

	return nil
}

// Load reads a persisted key pair back and checks that the two halves match.
func Load(paths Paths) (*x509.Certificate, *rsa.PrivateKey, error) {
	certPEM, err := os.ReadFile(paths.Cert)
	if err != nil {
		return nil, nil, &IOError{Op: "read", Path: paths.Cert, Err: err}
	}

	cert, err := pki.ParseCertificatePEM(certPEM)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse %s: %w", paths.Cert, err)
	}

	keyPEM, err := os.ReadFile(paths.Key)
	if err != nil {
		return nil, nil, &IOError{Op: "read", Path: paths.Key, Err: err}
	}

	key, err := pki.ParsePrivateKeyPEM(keyPEM)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse %s: %w", paths.Key, err)
	}

	if err := pki.VerifyCertKeyPair(cert, key); err != nil {
		return nil, nil, fmt.Errorf("%s and %s do not match: %w", paths.Key, paths.Cert, err)
	}

	return cert, key, nil
}

// LoadCertificate reads a single PEM certificate.
func LoadCertificate(path string) (*x509.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &IOError{Op: "read", Path: path, Err: err}
	}

	return pki.ParseCertificatePEM(data)
}

// LoadSigner reloads a persisted certificate authority so it can sign new leaves.
func LoadSigner(paths Paths) (*pki.FileSigner, error) {
	return pki.NewFileSigner(paths.Key, paths.Cert)
}
