package instance

import (
	"context"

	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/flecserr"
	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/id"
	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/portmap"
	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/vault"
)

// AddPortMapping adds one port mapping for the given transport, rejecting it
// if it overlaps an existing mapping of the same transport on the host side
// (spec.md §4.5 "ports").
func (m *Manager) AddPortMapping(ctx context.Context, instanceID id.InstanceID, proto portmap.Protocol, mapping portmap.Mapping) error {
	g := m.v.Grab(vault.NewReservation().WithInstances(vault.ModeWrite))
	defer func() {
		if err := g.Close(); err != nil {
			m.log.WithError(err).Error("failed to persist instance pouch after port update")
		}
	}()

	inst, ok := g.Instances.Get(instanceID.String())
	if !ok {
		return flecserr.Newf(flecserr.KindNotFound, "no instance %s", instanceID)
	}

	for _, existing := range inst.Config.Ports[proto] {
		if existing.HostPortsOverlap(mapping) {
			return flecserr.Newf(flecserr.KindConflict, "port mapping %s overlaps existing mapping %s", mapping, existing)
		}
	}

	if inst.Config.Ports == nil {
		inst.Config.Ports = make(map[portmap.Protocol][]portmap.Mapping)
	}
	inst.Config.Ports[proto] = append(inst.Config.Ports[proto], mapping)
	g.Instances.Put(instanceID.String(), inst)
	return nil
}

// DeletePortMapping removes the mapping on proto whose host range contains
// hostPort. Deleting a single host port that belongs to a wider range
// removes the entire range (spec.md §4.5 "ports": there is no partial-range
// deletion by a single port).
func (m *Manager) DeletePortMapping(ctx context.Context, instanceID id.InstanceID, proto portmap.Protocol, hostPort uint16) error {
	g := m.v.Grab(vault.NewReservation().WithInstances(vault.ModeWrite))
	defer func() {
		if err := g.Close(); err != nil {
			m.log.WithError(err).Error("failed to persist instance pouch after port update")
		}
	}()

	inst, ok := g.Instances.Get(instanceID.String())
	if !ok {
		return flecserr.Newf(flecserr.KindNotFound, "no instance %s", instanceID)
	}

	existing := inst.Config.Ports[proto]
	out := existing[:0]
	found := false
	for _, mapping := range existing {
		if mapping.ContainsHostPort(hostPort) {
			found = true
			continue
		}
		out = append(out, mapping)
	}
	if !found {
		return flecserr.Newf(flecserr.KindNotFound, "no %s mapping covers host port %d", proto, hostPort)
	}
	inst.Config.Ports[proto] = out
	g.Instances.Put(instanceID.String(), inst)
	return nil
}

// DeletePortRange removes the mapping on proto whose host range exactly
// equals rng. Ranges that are only partially covered are rejected; carving
// a hole out of a wider range is not supported (spec.md §4.5 "ports").
func (m *Manager) DeletePortRange(ctx context.Context, instanceID id.InstanceID, proto portmap.Protocol, rng portmap.Range) error {
	g := m.v.Grab(vault.NewReservation().WithInstances(vault.ModeWrite))
	defer func() {
		if err := g.Close(); err != nil {
			m.log.WithError(err).Error("failed to persist instance pouch after port update")
		}
	}()

	inst, ok := g.Instances.Get(instanceID.String())
	if !ok {
		return flecserr.Newf(flecserr.KindNotFound, "no instance %s", instanceID)
	}

	existing := inst.Config.Ports[proto]
	out := existing[:0]
	found := false
	for _, mapping := range existing {
		if mapping.HostRange() == rng {
			found = true
			continue
		}
		out = append(out, mapping)
	}
	if !found {
		return flecserr.Newf(flecserr.KindNotFound, "no %s mapping matches host range %s", proto, rng)
	}
	inst.Config.Ports[proto] = out
	g.Instances.Put(instanceID.String(), inst)
	return nil
}
