package instance

import (
	"context"
	"fmt"

	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/flecserr"
	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/id"
	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/proxy"
	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/vault"
)

// Delete removes an instance permanently: it stops the instance first if
// needed, removes its container, removes its named volumes, removes its
// proxy routes, and finally drops it from the vault. Deleting an unknown
// instance is idempotent and returns no error (spec.md §4.5 "Delete"). If a
// destructive step fails partway, the instance is left in the vault with
// whatever state it reached so the caller can retry.
func (m *Manager) Delete(ctx context.Context, instanceID id.InstanceID) error {
	if _, ok := m.lookup(instanceID); !ok {
		return nil
	}

	if err := m.Stop(ctx, instanceID); err != nil {
		return flecserr.Because(flecserr.KindRuntimeFailure, fmt.Sprintf("stop instance %s before delete", instanceID), err)
	}

	g := m.v.Grab(vault.NewReservation().WithInstances(vault.ModeWrite))
	defer func() {
		if err := g.Close(); err != nil {
			m.log.WithError(err).Error("failed to persist instance pouch after delete")
		}
	}()

	inst, ok := g.Instances.Get(instanceID.String())
	if !ok {
		return nil
	}

	driver, err := m.driverFor(inst.DeploymentID)
	if err != nil {
		return err
	}

	if inst.ContainerID != "" {
		if err := driver.RemoveContainer(ctx, inst.ContainerID, true); err != nil {
			g.Instances.Put(instanceID.String(), inst)
			return flecserr.Because(flecserr.KindRuntimeFailure, fmt.Sprintf("remove container for instance %s", instanceID), err)
		}
		inst.ContainerID = ""
	}

	for logical, volumeName := range inst.Config.Volumes {
		if err := driver.RemoveVolume(ctx, volumeName, true); err != nil {
			m.log.WithError(err).WithField("volume", logical).Warn("failed to remove instance volume")
		}
	}

	if m.floxy != nil {
		op := proxy.NewOperation(ctx, m.floxy, m.log)
		if err := op.DeleteReverseProxyConfig(inst.AppKey.Name, instanceID.String()); err != nil {
			m.log.WithError(err).Warn("failed to remove proxy routes on delete")
		}
		if cerr := op.Close(); cerr != nil {
			m.log.WithError(cerr).Warn("failed to reload proxy after delete")
		}
	}

	g.Instances.Delete(instanceID.String())
	return nil
}

func (m *Manager) lookup(instanceID id.InstanceID) (vault.Instance, bool) {
	g := m.v.Grab(vault.NewReservation().WithInstances(vault.ModeRead))
	defer func() {
		if err := g.Close(); err != nil {
			m.log.WithError(err).Error("failed to release instance pouch after lookup")
		}
	}()
	return g.Instances.Get(instanceID.String())
}
