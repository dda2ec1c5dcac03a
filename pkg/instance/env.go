package instance

import (
	"context"
	"strings"

	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/flecserr"
	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/id"
	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/manifest"
	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/vault"
)

// SetEnv replaces an instance's whole environment override set, rejecting
// the request outright if it contains duplicate variable names (spec.md
// §4.5 "environment"). The error message lists every offending name, one
// per line, so a caller can fix the whole submission in one round trip.
func (m *Manager) SetEnv(ctx context.Context, instanceID id.InstanceID, vars []manifest.EnvVar) error {
	seen := make(map[string]bool, len(vars))
	var dupes []string
	for _, v := range vars {
		if seen[v.Name] {
			dupes = append(dupes, v.Name)
		}
		seen[v.Name] = true
	}
	if len(dupes) > 0 {
		return flecserr.Newf(flecserr.KindMalformedRequest, "duplicate environment variable names:\n%s", strings.Join(dupes, "\n"))
	}

	g := m.v.Grab(vault.NewReservation().WithInstances(vault.ModeWrite))
	defer func() {
		if err := g.Close(); err != nil {
			m.log.WithError(err).Error("failed to persist instance pouch after env update")
		}
	}()

	inst, ok := g.Instances.Get(instanceID.String())
	if !ok {
		return flecserr.Newf(flecserr.KindNotFound, "no instance %s", instanceID)
	}
	inst.Config.EnvOverrides = vars
	g.Instances.Put(instanceID.String(), inst)
	return nil
}

// GetEnvVar looks up a single environment override by name. Getting a known
// name returns its value; getting an unknown name is NotFound (spec.md
// §4.5 "environment").
func (m *Manager) GetEnvVar(ctx context.Context, instanceID id.InstanceID, name string) (manifest.EnvVar, error) {
	g := m.v.Grab(vault.NewReservation().WithInstances(vault.ModeRead))
	defer func() {
		if err := g.Close(); err != nil {
			m.log.WithError(err).Error("failed to release instance pouch after env lookup")
		}
	}()

	inst, ok := g.Instances.Get(instanceID.String())
	if !ok {
		return manifest.EnvVar{}, flecserr.Newf(flecserr.KindNotFound, "no instance %s", instanceID)
	}
	for _, v := range inst.Config.EnvOverrides {
		if v.Name == name {
			return v, nil
		}
	}
	return manifest.EnvVar{}, flecserr.Newf(flecserr.KindNotFound, "no environment variable %q set for instance %s", name, instanceID)
}

// PutEnvVar sets or replaces a single environment override by name.
func (m *Manager) PutEnvVar(ctx context.Context, instanceID id.InstanceID, v manifest.EnvVar) error {
	g := m.v.Grab(vault.NewReservation().WithInstances(vault.ModeWrite))
	defer func() {
		if err := g.Close(); err != nil {
			m.log.WithError(err).Error("failed to persist instance pouch after env update")
		}
	}()

	inst, ok := g.Instances.Get(instanceID.String())
	if !ok {
		return flecserr.Newf(flecserr.KindNotFound, "no instance %s", instanceID)
	}
	replaced := false
	for i, existing := range inst.Config.EnvOverrides {
		if existing.Name == v.Name {
			inst.Config.EnvOverrides[i] = v
			replaced = true
			break
		}
	}
	if !replaced {
		inst.Config.EnvOverrides = append(inst.Config.EnvOverrides, v)
	}
	g.Instances.Put(instanceID.String(), inst)
	return nil
}

// DeleteEnvVar removes a single environment override by name. Deleting a
// name that is not set is a no-op.
func (m *Manager) DeleteEnvVar(ctx context.Context, instanceID id.InstanceID, name string) error {
	g := m.v.Grab(vault.NewReservation().WithInstances(vault.ModeWrite))
	defer func() {
		if err := g.Close(); err != nil {
			m.log.WithError(err).Error("failed to persist instance pouch after env update")
		}
	}()

	inst, ok := g.Instances.Get(instanceID.String())
	if !ok {
		return flecserr.Newf(flecserr.KindNotFound, "no instance %s", instanceID)
	}
	out := inst.Config.EnvOverrides[:0]
	for _, existing := range inst.Config.EnvOverrides {
		if existing.Name != name {
			out = append(out, existing)
		}
	}
	inst.Config.EnvOverrides = out
	g.Instances.Put(instanceID.String(), inst)
	return nil
}
