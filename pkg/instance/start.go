package instance

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/deployment"
	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/flecserr"
	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/id"
	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/manifest"
	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/vault"
)

// Start brings an instance up: ensures the instance's volumes exist, creates
// the container, copies staged conffiles into it, attaches it to each
// network in its config, starts it, and marks desired=Running. It does not
// create networks: each one must already exist in the runtime. The volumes
// are not mounted into the container. On a failure after the container is
// created it detaches the networks it attached here, removes the container,
// and surfaces the error.
func (m *Manager) Start(ctx context.Context, instanceID id.InstanceID) error {
	g := m.v.Grab(vault.NewReservation().
		WithInstances(vault.ModeWrite).
		WithManifests(vault.ModeRead).
		WithDeployments(vault.ModeRead))
	defer func() {
		if err := g.Close(); err != nil {
			m.log.WithError(err).Error("failed to persist instance pouch after start")
		}
	}()

	inst, ok := g.Instances.Get(instanceID.String())
	if !ok {
		return flecserr.Newf(flecserr.KindNotFound, "no instance %s", instanceID)
	}
	if inst.Desired == vault.DesiredRunning && inst.Status == vault.StatusRunning {
		return nil
	}

	man, ok := g.Manifests.Get(inst.AppKey.String())
	if !ok {
		return flecserr.Newf(flecserr.KindNotFound, "no manifest for %s", inst.AppKey)
	}
	if man.Kind != manifest.KindSingle || man.Single == nil {
		return flecserr.New(flecserr.KindUnsupportedForKind, "starting a multi-service instance is not supported")
	}

	driver, err := m.driverFor(inst.DeploymentID)
	if err != nil {
		return err
	}

	for _, volumeName := range inst.Config.Volumes {
		if err := driver.CreateVolume(ctx, volumeName); err != nil {
			return flecserr.Because(flecserr.KindRuntimeFailure, fmt.Sprintf("ensure volume %s for instance %s", volumeName, instanceID), err)
		}
	}

	var attached []string
	rollback := func(containerID string) {
		for _, netID := range attached {
			if uerr := driver.DisconnectNetwork(ctx, containerID, netID); uerr != nil {
				m.log.WithError(uerr).WithField("network", netID).Warn("failed to unwind network attachment after failed start")
			}
		}
	}

	spec := deployment.CreateSpec{
		InstanceID:    instanceID,
		ContainerName: containerName(instanceID),
		Image:         man.Single.Image,
		Args:          man.Single.Args,
		Env:           inst.Config.EnvOverrides,
		Labels:        inst.Config.Labels,
		Capabilities:  man.Single.Capabilities,
		Devices:       man.Single.Devices,
		Ports:         inst.Config.Ports,
	}
	for _, net := range inst.Config.Networks {
		spec.Networks = append(spec.Networks, net.NetworkID)
	}

	containerID, err := driver.CreateContainer(ctx, spec)
	if err != nil {
		return flecserr.Because(flecserr.KindRuntimeFailure, fmt.Sprintf("create container for instance %s", instanceID), err)
	}
	inst.ContainerID = containerID

	m.copyConfigFiles(ctx, driver, instanceID, containerID, inst.Config.ConfigFiles)

	for _, net := range inst.Config.Networks {
		if err := driver.ConnectNetwork(ctx, containerID, net.NetworkID, net.Address); err != nil {
			rollback(containerID)
			if rerr := driver.RemoveContainer(ctx, containerID, true); rerr != nil {
				m.log.WithError(rerr).Warn("failed to remove container after failed network attach")
			}
			return flecserr.Because(flecserr.KindRuntimeFailure, fmt.Sprintf("attach instance %s to network %s", instanceID, net.NetworkID), err)
		}
		attached = append(attached, net.NetworkID)
	}

	if err := driver.StartContainer(ctx, containerID); err != nil {
		rollback(containerID)
		if rerr := driver.RemoveContainer(ctx, containerID, true); rerr != nil {
			m.log.WithError(rerr).Warn("failed to remove container after failed start")
		}
		return flecserr.Because(flecserr.KindRuntimeFailure, fmt.Sprintf("start container for instance %s", instanceID), err)
	}

	inst.Desired = vault.DesiredRunning
	inst.Status = vault.StatusRunning
	g.Instances.Put(instanceID.String(), inst)
	return nil
}

// copyConfigFiles stages every conffile that already exists on disk into
// the freshly created container, using the driver's CLI-fallback copy
// operation. A conffile with no host file yet (the common case for an
// "init" file the app itself creates on first run) is skipped, not an
// error.
func (m *Manager) copyConfigFiles(ctx context.Context, driver deployment.Driver, instanceID id.InstanceID, containerID string, files []vault.InstanceConfigFile) {
	if m.confBase == "" {
		return
	}
	for _, cf := range files {
		hostPath := filepath.Join(m.confBase, instanceID.String(), "conf", cf.HostFileName)
		content, err := os.ReadFile(hostPath)
		if err != nil {
			if !os.IsNotExist(err) {
				m.log.WithError(err).WithField("conffile", cf.HostFileName).Warn("failed to read conffile")
			}
			continue
		}
		if err := driver.CopyConfigFile(ctx, containerID, cf.ContainerFilePath, content); err != nil {
			m.log.WithError(err).WithField("conffile", cf.HostFileName).Warn("failed to copy conffile into container")
		}
	}
}
