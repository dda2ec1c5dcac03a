// Package provider implements the provides/depends feature graph (spec.md
// §4.8): which instances advertise a named feature, which provider is the
// default for a feature, and which provider an instance currently depends
// on. Grounded on lazydocker's service-dependency resolution in
// pkg/commands/services.go (GetReservedDeployment / linked-service lookup),
// generalized from "one compose file's static links" into "a live map of
// feature -> advertising instances with a settable default".
package provider

import (
	"context"

	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/flecserr"
	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/id"
	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/vault"
)

// DefaultToken is the literal dependency target meaning "whatever the
// feature's default provider currently is" (spec.md §4.8 "by feature +
// target provider id or by the literal 'Default'").
const DefaultToken = "Default"

// Manager performs provider/dependency operations against a Vault.
type Manager struct {
	v *vault.Vault
}

// NewManager builds a Manager.
func NewManager(v *vault.Vault) *Manager {
	return &Manager{v: v}
}

// ListProviders returns every provider record advertising feature.
func (m *Manager) ListProviders(ctx context.Context, feature string) (map[id.InstanceID]vault.ProviderRecord, error) {
	g := m.v.Grab(vault.NewReservation().WithProviders(vault.ModeRead))
	defer g.Close()

	providers, _ := g.Providers.Get(providersKey)
	byFeature, ok := providers.ByFeature[feature]
	if !ok {
		return map[id.InstanceID]vault.ProviderRecord{}, nil
	}
	out := make(map[id.InstanceID]vault.ProviderRecord, len(byFeature))
	for k, v := range byFeature {
		out[k] = v
	}
	return out, nil
}

// GetProvider returns the provider record an instance advertises for
// feature, if any.
func (m *Manager) GetProvider(ctx context.Context, feature string, instanceID id.InstanceID) (vault.ProviderRecord, bool, error) {
	g := m.v.Grab(vault.NewReservation().WithProviders(vault.ModeRead))
	defer g.Close()

	providers, _ := g.Providers.Get(providersKey)
	byFeature, ok := providers.ByFeature[feature]
	if !ok {
		return vault.ProviderRecord{}, false, nil
	}
	record, ok := byFeature[instanceID]
	return record, ok, nil
}

// SetDefault makes instanceID the default provider for feature. It fails
// with a provider-does-not-provide error if instanceID does not currently
// advertise the feature.
func (m *Manager) SetDefault(ctx context.Context, feature string, instanceID id.InstanceID) error {
	g := m.v.Grab(vault.NewReservation().WithProviders(vault.ModeWrite))
	defer func() { _ = g.Close() }()

	providers, _ := g.Providers.Get(providersKey)
	if providers.ByFeature == nil {
		providers = vault.NewProviders()
	}
	byFeature, ok := providers.ByFeature[feature]
	if !ok {
		return providerDoesNotProvide(feature, instanceID)
	}
	if _, ok := byFeature[instanceID]; !ok {
		return providerDoesNotProvide(feature, instanceID)
	}

	if providers.Defaults == nil {
		providers.Defaults = make(map[string]id.InstanceID)
	}
	providers.Defaults[feature] = instanceID
	g.Providers.Put(providersKey, providers)
	return nil
}

// ClearDefault removes the default provider for feature. It fails with a
// conflict if any instance still depends on "Default" for that feature.
func (m *Manager) ClearDefault(ctx context.Context, feature string) error {
	gp := m.v.Grab(vault.NewReservation().WithProviders(vault.ModeRead).WithInstances(vault.ModeRead))
	for _, inst := range gp.Instances.All() {
		for _, dep := range inst.Config.Dependencies {
			if dep.Feature == feature && dep.TargetIsDefault {
				_ = gp.Close()
				return flecserr.Newf(flecserr.KindConflict, "instance %s still depends on the default provider for %q", inst.ID, feature)
			}
		}
	}
	if err := gp.Close(); err != nil {
		return err
	}

	g := m.v.Grab(vault.NewReservation().WithProviders(vault.ModeWrite))
	defer func() { _ = g.Close() }()
	providers, _ := g.Providers.Get(providersKey)
	if providers.Defaults != nil {
		delete(providers.Defaults, feature)
	}
	g.Providers.Put(providersKey, providers)
	return nil
}

// SetDependency records that instanceID depends on feature, resolved either
// to a specific provider instance id or to the feature's default provider
// (spec.md §4.8 "by the literal 'Default'"). It fails with a conflict if
// the instance is currently running, or if the dependent's and provider's
// feature configs mismatch.
func (m *Manager) SetDependency(ctx context.Context, instanceID id.InstanceID, feature string, target string) error {
	g := m.v.Grab(vault.NewReservation().WithInstances(vault.ModeWrite).WithProviders(vault.ModeRead))
	defer func() { _ = g.Close() }()

	inst, ok := g.Instances.Get(instanceID.String())
	if !ok {
		return flecserr.Newf(flecserr.KindNotFound, "no instance %s", instanceID)
	}
	if inst.Status == vault.StatusRunning {
		return flecserr.Newf(flecserr.KindConflict, "cannot set a dependency while instance %s is running", instanceID)
	}

	providers, _ := g.Providers.Get(providersKey)

	isDefault := target == DefaultToken
	var providerID id.InstanceID
	if isDefault {
		resolved, ok := providers.Defaults[feature]
		if !ok {
			return flecserr.Newf(flecserr.KindNotFound, "no default provider configured for feature %q", feature)
		}
		providerID = resolved
	} else {
		parsed, err := id.ParseInstanceID(target)
		if err != nil {
			return flecserr.Because(flecserr.KindMalformedRequest, "parse dependency target", err)
		}
		providerID = parsed
	}

	byFeature := providers.ByFeature[feature]
	record, provides := byFeature[providerID]
	if !provides {
		return providerDoesNotProvide(feature, providerID)
	}

	if cfg, ok := inst.Config.FeatureConfig[feature]; ok {
		if !configsMatch(cfg, record.Config) {
			return flecserr.Newf(flecserr.KindConflict, "feature config mismatch for %q: dependent wants %v, provider offers %v", feature, cfg, record.Config)
		}
	}

	dep := vault.Dependency{Feature: feature, ProviderID: providerID, TargetIsDefault: isDefault}
	replaced := false
	for i, existing := range inst.Config.Dependencies {
		if existing.Feature == feature {
			inst.Config.Dependencies[i] = dep
			replaced = true
			break
		}
	}
	if !replaced {
		inst.Config.Dependencies = append(inst.Config.Dependencies, dep)
	}
	g.Instances.Put(instanceID.String(), inst)
	return nil
}

// ClearDependency removes instanceID's dependency on feature, if any.
func (m *Manager) ClearDependency(ctx context.Context, instanceID id.InstanceID, feature string) error {
	g := m.v.Grab(vault.NewReservation().WithInstances(vault.ModeWrite))
	defer func() { _ = g.Close() }()

	inst, ok := g.Instances.Get(instanceID.String())
	if !ok {
		return flecserr.Newf(flecserr.KindNotFound, "no instance %s", instanceID)
	}
	out := inst.Config.Dependencies[:0]
	for _, existing := range inst.Config.Dependencies {
		if existing.Feature != feature {
			out = append(out, existing)
		}
	}
	inst.Config.Dependencies = out
	g.Instances.Put(instanceID.String(), inst)
	return nil
}

func providerDoesNotProvide(feature string, instanceID id.InstanceID) error {
	return flecserr.Newf(flecserr.KindConflict, "instance %s does not provide feature %q", instanceID, feature)
}

func configsMatch(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}

// providersKey is the single-entry key the provider pouch is stored under;
// there is exactly one Providers document per vault (spec.md §3
// "Providers").
const providersKey = "providers"
