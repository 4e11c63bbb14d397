package main

import (
	"context"

	"github.com/alecthomas/kong"
	"github.com/wolfeidau/tlsbox/cmd/tlsbox/internal/commands"
)

var (
	version = "dev"
	cli     struct {
		Debug   bool `help:"Enable debug mode." env:"TLSBOX_DEBUG"`
		Version kong.VersionFlag
		Serve   commands.ServeCmd   `cmd:"" help:"Generate a fresh CA and server certificate, then serve HTTPS"`
		Issue   commands.IssueCmd   `cmd:"" help:"Issue an additional server certificate from a persisted CA"`
		Inspect commands.InspectCmd `cmd:"" help:"Print details of a persisted certificate"`
		Probe   commands.ProbeCmd   `cmd:"" help:"Wait until an HTTPS endpoint answers GET with 2xx"`
	}
)

func main() {
	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Name("tlsbox"),
		kong.Description("Self-contained HTTPS bootstrap with a throwaway certificate authority."),
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{Debug: cli.Debug, Version: version})
	cmd.FatalIfErrorf(err)
}
