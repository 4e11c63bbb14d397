package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/wolfeidau/tlsbox/internal/artifacts"
	"github.com/wolfeidau/tlsbox/internal/pki"
	"github.com/wolfeidau/tlsbox/internal/server"
)

type IssueCmd struct {
	Host      string `arg:"" help:"DNS name bound into the new certificate"`
	Name      string `help:"artifact name, defaults to <project>.<host>"`
	Project   string `help:"project whose CA signs the certificate" default:"tlsbox" env:"TLSBOX_PROJECT"`
	OutputDir string `help:"directory holding the CA and receiving the new pair, defaults to the executable directory" env:"TLSBOX_OUTPUT_DIR"`
	Force     bool   `help:"overwrite an existing certificate" default:"false"`
}

func (c *IssueCmd) Run(ctx context.Context, globals *Globals) error {
	ctx, log := withLogger(ctx, globals)

	paths, err := c.issue(ctx)
	if err != nil {
		return err
	}

	log.Info().
		Str("host", c.Host).
		Str("key", paths.Key).
		Str("cert", paths.Cert).
		Msg("Issued server certificate")

	return nil
}

func (c *IssueCmd) issue(ctx context.Context) (artifacts.Paths, error) {
	dir := c.OutputDir
	if dir == "" {
		var err error
		if dir, err = artifacts.ExecutableDir(); err != nil {
			return artifacts.Paths{}, err
		}
	}

	name := c.Name
	if name == "" {
		name = c.Project + "." + c.Host
	}

	// the bootstrap pairs are never replaced, not even with --force
	if name == c.Project+"."+server.CAArtifact || name == c.Project+"."+server.ServerArtifact {
		return artifacts.Paths{}, fmt.Errorf("artifact name %q is reserved for the bootstrap pair, use --name to choose another", name)
	}

	target := artifacts.PathsFor(dir, name)
	if fileExists(target.Cert) && !c.Force {
		return artifacts.Paths{}, fmt.Errorf("certificate %s already exists, use --force to replace it", target.Cert)
	}

	signer, err := artifacts.LoadSigner(artifacts.PathsFor(dir, c.Project+"."+server.CAArtifact))
	if err != nil {
		return artifacts.Paths{}, fmt.Errorf("failed to load CA: %w", err)
	}

	leaf, err := pki.NewServerCertificate(ctx, c.Project, c.Host, signer)
	if err != nil {
		return artifacts.Paths{}, fmt.Errorf("failed to issue certificate: %w", err)
	}

	return artifacts.Write(ctx, leaf, dir, name)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
