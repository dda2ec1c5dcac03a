package instance

import (
	"context"

	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/flecserr"
	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/id"
	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/vault"
)

// List returns every instance, optionally filtered by app name and/or
// version (spec.md §6 "list, filter by app name/version"). An empty filter
// matches everything.
func (m *Manager) List(ctx context.Context, appName, appVersion string) ([]vault.Instance, error) {
	g := m.v.Grab(vault.NewReservation().WithInstances(vault.ModeRead))
	defer func() { _ = g.Close() }()

	all := g.Instances.All()
	out := make([]vault.Instance, 0, len(all))
	for _, inst := range all {
		if appName != "" && inst.AppKey.Name != appName {
			continue
		}
		if appVersion != "" && inst.AppKey.Version != appVersion {
			continue
		}
		out = append(out, inst)
	}
	return out, nil
}

// Get returns one instance's detail record.
func (m *Manager) Get(ctx context.Context, instanceID id.InstanceID) (vault.Instance, error) {
	g := m.v.Grab(vault.NewReservation().WithInstances(vault.ModeRead))
	defer func() { _ = g.Close() }()

	inst, ok := g.Instances.Get(instanceID.String())
	if !ok {
		return vault.Instance{}, flecserr.Newf(flecserr.KindNotFound, "no instance %s", instanceID)
	}
	return inst, nil
}
