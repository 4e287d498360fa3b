package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	kongyaml "github.com/alecthomas/kong-yaml"
	kongcompletion "github.com/jotaen/kong-completion"

	"github.com/kestrelops/venvorch/internal/config"
)

const description = `venvorchd is the ephemeral environment orchestrator daemon: it runs the
session registry, port pool, cluster network planner, and the container and
VM environment drivers behind a small HTTP control plane.`

// CLI is the root command. Config's fields are flattened into the root
// flag set via Kong's embed tag, so every recognized environment variable
// doubles as a top-level flag and a config-file key.
type CLI struct {
	config.Config `embed:""`

	DBPath       string `env:"VENVORCH_DB_PATH" default:"./venvorch.db" help:"Path to the sqlite definitions database."`
	OTELEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT" help:"OTLP/gRPC collector endpoint (host:port); empty disables tracing export."`

	Serve   ServeCmd   `cmd:"" help:"Run the orchestrator daemon and its HTTP control plane."`
	Seed    SeedCmd    `cmd:"" help:"Load a YAML seed file of cluster/environment definitions into the database."`
	Version VersionCmd `cmd:"" help:"Print version information about this build."`
}

func main() {
	var cli CLI

	parser := kong.Must(&cli,
		kong.Name("venvorchd"),
		kong.Description(description),
		kong.UsageOnError(),
		kong.Configuration(kongyaml.Loader, "/etc/venvorchd/config.yaml", "~/.venvorchd.yaml"),
	)
	kongcompletion.Register(parser)

	kctx, err := parser.Parse(os.Args[1:])
	parser.FatalIfErrorf(err)

	if err := kctx.Run(&cli); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// bootstrapContext returns a context cancelled on SIGINT/SIGTERM, shared by
// every subcommand that runs a long-lived loop.
func bootstrapContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
