package instance

import (
	"context"
	"fmt"

	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/flecserr"
	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/id"
	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/proxy"
	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/vault"
)

// Stop brings a running instance down: stops the container, disconnects
// its networks, removes any proxy routes installed for it, and marks
// desired=Stopped. Already-stopped is a no-op (spec.md §4.5 "Stop").
func (m *Manager) Stop(ctx context.Context, instanceID id.InstanceID) error {
	g := m.v.Grab(vault.NewReservation().WithInstances(vault.ModeWrite))
	defer func() {
		if err := g.Close(); err != nil {
			m.log.WithError(err).Error("failed to persist instance pouch after stop")
		}
	}()

	inst, ok := g.Instances.Get(instanceID.String())
	if !ok {
		return flecserr.Newf(flecserr.KindNotFound, "no instance %s", instanceID)
	}
	if inst.Desired == vault.DesiredStopped {
		return nil
	}

	driver, err := m.driverFor(inst.DeploymentID)
	if err != nil {
		return err
	}

	if inst.ContainerID != "" {
		if err := driver.StopContainer(ctx, inst.ContainerID, nil); err != nil {
			return flecserr.Because(flecserr.KindRuntimeFailure, fmt.Sprintf("stop container for instance %s", instanceID), err)
		}
		for _, net := range inst.Config.Networks {
			if err := driver.DisconnectNetwork(ctx, inst.ContainerID, net.NetworkID); err != nil {
				m.log.WithError(err).WithField("network", net.NetworkID).Warn("failed to disconnect network on stop")
			}
		}
	}

	if m.floxy != nil {
		op := proxy.NewOperation(ctx, m.floxy, m.log)
		if err := op.DeleteReverseProxyConfig(inst.AppKey.Name, instanceID.String()); err != nil {
			m.log.WithError(err).Warn("failed to remove proxy routes on stop")
		}
		if cerr := op.Close(); cerr != nil {
			m.log.WithError(cerr).Warn("failed to reload proxy after stop")
		}
	}

	inst.Desired = vault.DesiredStopped
	inst.Status = vault.StatusStopped
	g.Instances.Put(instanceID.String(), inst)
	return nil
}
