package main

import (
	"context"
	"fmt"

	"github.com/kestrelops/venvorch/internal/bridge"
	"github.com/kestrelops/venvorch/internal/definitions"
	"github.com/kestrelops/venvorch/internal/dockernet"
	"github.com/kestrelops/venvorch/internal/dockerops"
	"github.com/kestrelops/venvorch/internal/hostprobe"
	"github.com/kestrelops/venvorch/internal/httpapi"
	"github.com/kestrelops/venvorch/internal/libvirtops"
	"github.com/kestrelops/venvorch/internal/logging"
	"github.com/kestrelops/venvorch/internal/overlay"
	"github.com/kestrelops/venvorch/internal/portpool"
	"github.com/kestrelops/venvorch/internal/registry"
	"github.com/kestrelops/venvorch/internal/service"
	"github.com/kestrelops/venvorch/internal/telemetry"
)

// ServeCmd runs the orchestrator daemon: it opens the definitions database,
// connects to Docker and libvirt, assembles the service, and serves the
// HTTP control plane until SIGINT/SIGTERM.
type ServeCmd struct{}

func (cmd *ServeCmd) Run(cli *CLI) error {
	if err := cli.Config.Validate(); err != nil {
		return err
	}

	log := logging.New(cli.Debug, cli.LogFilePath)

	ctx, cancel := bootstrapContext()
	defer cancel()

	shutdownTelemetry, err := telemetry.Setup(ctx, "venvorchd", cli.OTELEndpoint)
	if err != nil {
		return fmt.Errorf("serve: setting up telemetry: %w", err)
	}
	defer shutdownTelemetry(context.Background())

	store, err := definitions.OpenSQLiteStore(cli.DBPath)
	if err != nil {
		return fmt.Errorf("serve: opening definitions store: %w", err)
	}
	defer store.Close()

	docker, err := dockerops.New()
	if err != nil {
		return fmt.Errorf("serve: connecting to docker: %w", err)
	}
	defer docker.Close()

	hv, err := libvirtops.Open(cli.LibvirtClient)
	if err != nil {
		return fmt.Errorf("serve: connecting to libvirt: %w", err)
	}
	defer hv.Close()

	deps := service.Deps{
		Store:         store,
		Registry:      registry.New(),
		Ports:         portpool.New(cli.EnvPortsBegin, cli.EnvPortsEnd),
		BridgeProv:    bridge.NewProvisioner(hv, log),
		DockernetProv: dockernet.NewProvisioner(docker, log),
		ContainerOps:  docker,
		Hypervisor:    hv,
		OverlayMgr:    overlay.NewManager(log),
		HostProbe:     hostprobe.NewGopsutilProbe(),
		TTL: service.TTLPolicy{
			Default:          cli.Config.ClusterTTL(),
			AllowExtendAfter: cli.Config.ClusterTTLAllowExtendAfter(),
			Extend:           cli.Config.ClusterTTLExtend(),
			SweepInterval:    cli.Config.ClusterTTLPoll(),
		},
		VM: service.VMPaths{
			OverlaysPath: cli.VMOverlaysPath,
			BootPoll:     cli.Config.EnvBootPollInterval(),
			BootTimeout:  cli.Config.VMBootTimeout(),
		},
		Log: log,
	}

	svc := service.New(deps)
	defer svc.Close()

	handler := httpapi.New(svc, log)
	addr := fmt.Sprintf("%s:%d", cli.HostAPI, cli.PortAPI)

	log.Info("serving", "addr", addr)
	return httpapi.Serve(ctx, addr, handler, log)
}
