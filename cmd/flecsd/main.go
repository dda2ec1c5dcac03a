// Command flecsd is the on-device application orchestrator's daemon entry
// point. It loads configuration, wires the vault, deployment driver, proxy
// control layer, and quest engine into the sorcerer service layer, runs the
// one-shot legacy migration if needed, and serves the HTTP adapter.
// Grounded on the teacher's main.go: build-metadata injected via ldflags,
// a single top-level command, config/app construction, then Run.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/api"
	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/appmgr"
	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/catalogue"
	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/config"
	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/deployment"
	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/deployment/docker"
	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/id"
	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/instance"
	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/log"
	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/migration"
	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/provider"
	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/proxy"
	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/quest"
	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/sorcerer"
	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/usb"
	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/vault"
)

// Build metadata, injected via -ldflags the way the teacher's version/commit/date are.
var (
	version   = "unversioned"
	commit    = ""
	buildDate = ""
)

func main() {
	var debug bool

	root := &cobra.Command{
		Use:   "flecsd",
		Short: "flecsd orchestrates containerized apps on a single host",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(debug)
		},
	}
	root.Flags().BoolVarP(&debug, "debug", "d", false, "enable verbose logging")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

const dockerDeploymentID = id.DeploymentID("docker-default")
const composeDeploymentID = id.DeploymentID("compose-default")

func run(debug bool) error {
	userCfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	appCfg := config.New(version, commit, buildDate, debug, userCfg)
	logger := log.NewLogger(appCfg)

	dockerDriver, err := docker.New(logger, "")
	if err != nil {
		return fmt.Errorf("connect to docker: %w", err)
	}
	defer dockerDriver.Close()

	drivers := map[id.DeploymentID]deployment.Driver{
		dockerDeploymentID: dockerDriver,
	}

	v := vault.Open(vault.DefaultPaths(userCfg.BasePath), logger)
	seedDeployments(v, logger)

	legacyPaths := migration.DefaultPaths(userCfg.BasePath)
	if migration.Needed(legacyPaths) {
		migrator := migration.NewMigrator(logger, dockerDeploymentID, composeDeploymentID, usb.NewSysfsReader())
		if err := migrator.Run(v, legacyPaths); err != nil {
			logger.WithError(err).Error("legacy migration failed; starting with pre-migration state")
		}
	}

	floxy := proxy.NewRegistry(20000, 20999, nil)
	master := quest.NewMaster()

	instMgr := instance.NewManager(logger, v, drivers, floxy, filepath.Join(userCfg.BasePath, "instances"))
	appMgr := appmgr.NewManager(logger, v, catalogue.New(userCfg.Console.URI), drivers)
	provMgr := provider.NewManager(v)

	instances := sorcerer.NewInstances(master, instMgr)
	apps := sorcerer.NewApps(master, appMgr)
	deployments := sorcerer.NewDeployments(v)
	providers := sorcerer.NewProviders(provMgr)
	licensing := sorcerer.NewLicensing(v)

	server := api.NewServer(logger, instances, apps, deployments, providers, licensing)

	listener, err := listen(userCfg.FlecsdSocketPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", userCfg.FlecsdSocketPath, err)
	}

	httpServer := &http.Server{Handler: server.Handler()}
	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Serve(listener)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("serve http: %w", err)
		}
	case <-sigCh:
		logger.Info("shutting down")
		_, _ = quest.ShutdownWith(master, "shutdown", func(q *quest.Quest) (struct{}, error) {
			return struct{}{}, httpServer.Shutdown(context.Background())
		})
	}
	return nil
}

// listen binds a Unix domain socket at path, removing any stale socket
// file left behind by a previous, uncleanly-terminated run.
func listen(path string) (net.Listener, error) {
	_ = os.Remove(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return net.Listen("unix", path)
}

// seedDeployments registers the docker and compose deployment endpoints on
// first run (the default deployment is docker for Single manifests, compose
// for Multi), leaving any already-persisted deployment alone.
func seedDeployments(v *vault.Vault, logger *logrus.Entry) {
	g := v.Grab(vault.NewReservation().WithDeployments(vault.ModeWrite))
	defer func() {
		if err := g.Close(); err != nil {
			logger.WithError(err).Error("failed to persist seeded deployments")
		}
	}()

	if _, ok := g.Deployments.Get(string(dockerDeploymentID)); !ok {
		g.Deployments.Put(string(dockerDeploymentID), vault.Deployment{ID: dockerDeploymentID, Kind: vault.DeploymentDocker, Default: true})
	}
	if _, ok := g.Deployments.Get(string(composeDeploymentID)); !ok {
		g.Deployments.Put(string(composeDeploymentID), vault.Deployment{ID: composeDeploymentID, Kind: vault.DeploymentCompose, Default: true})
	}
}
