package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/wolfeidau/tlsbox/internal/artifacts"
)

type InspectCmd struct {
	Path              string        `arg:"" help:"PEM certificate to inspect" type:"existingfile"`
	CA                string        `help:"CA certificate to verify against" type:"existingfile"`
	RotationThreshold time.Duration `help:"flag certificates expiring within this window" default:"720h"`
}

// CertReport holds what inspect found about a certificate.
type CertReport struct {
	Path          string
	Subject       string
	Issuer        string
	SerialNumber  string
	IsCA          bool
	DNSNames      []string
	NotBefore     time.Time
	NotAfter      time.Time
	DaysRemaining int
	Expired       bool
	ShouldRotate  bool

	// Verified is set when a CA was given and the certificate is signed by it.
	Verified    bool
	VerifyError error
}

func (c *InspectCmd) Run(ctx context.Context, globals *Globals) error {
	_, log := withLogger(ctx, globals)

	report, err := inspectCertificate(c.Path, c.CA, c.RotationThreshold)
	if err != nil {
		return err
	}

	if report.ShouldRotate {
		log.Warn().
			Int("days_remaining", report.DaysRemaining).
			Bool("expired", report.Expired).
			Msg("Certificate should be rotated")
	}

	printReport(os.Stdout, report, c.CA != "")

	if report.VerifyError != nil {
		return fmt.Errorf("certificate does not verify against %s: %w", c.CA, report.VerifyError)
	}

	return nil
}

func inspectCertificate(path, caPath string, rotationThreshold time.Duration) (*CertReport, error) {
	cert, err := artifacts.LoadCertificate(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load certificate: %w", err)
	}

	report := &CertReport{
		Path:          path,
		Subject:       cert.Subject.String(),
		Issuer:        cert.Issuer.String(),
		SerialNumber:  cert.SerialNumber.Text(16),
		IsCA:          cert.IsCA,
		DNSNames:      cert.DNSNames,
		NotBefore:     cert.NotBefore,
		NotAfter:      cert.NotAfter,
		DaysRemaining: int(time.Until(cert.NotAfter).Hours() / 24),
	}

	switch {
	case time.Now().After(cert.NotAfter):
		report.Expired = true
		report.ShouldRotate = true
	case time.Until(cert.NotAfter) < rotationThreshold:
		report.ShouldRotate = true
	}

	if caPath == "" {
		return report, nil
	}

	caCert, err := artifacts.LoadCertificate(caPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load CA certificate: %w", err)
	}

	// single issuer check, no chain building
	report.VerifyError = cert.CheckSignatureFrom(caCert)
	if report.VerifyError == nil && cert.Issuer.String() != caCert.Subject.String() {
		report.VerifyError = fmt.Errorf("issuer %q does not match CA subject %q", cert.Issuer, caCert.Subject)
	}
	report.Verified = report.VerifyError == nil

	return report, nil
}

func printReport(w io.Writer, r *CertReport, checkedCA bool) {
	fmt.Fprintf(w, "Certificate:    %s\n", r.Path)
	fmt.Fprintf(w, "  Subject:      %s\n", r.Subject)
	fmt.Fprintf(w, "  Issuer:       %s\n", r.Issuer)
	fmt.Fprintf(w, "  Serial:       %s\n", r.SerialNumber)
	fmt.Fprintf(w, "  CA:           %t\n", r.IsCA)
	if len(r.DNSNames) > 0 {
		fmt.Fprintf(w, "  DNS names:    %s\n", strings.Join(r.DNSNames, ", "))
	}
	fmt.Fprintf(w, "  Not before:   %s\n", r.NotBefore.Format(time.RFC3339))
	fmt.Fprintf(w, "  Not after:    %s\n", r.NotAfter.Format(time.RFC3339))
	fmt.Fprintf(w, "  Days left:    %d\n", r.DaysRemaining)
	if checkedCA {
		fmt.Fprintf(w, "  Verified:     %t\n", r.Verified)
	}
}
