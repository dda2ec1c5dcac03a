// Package instance implements instance lifecycle operations (spec.md
// §4.5): create, start, stop, delete, env/port/usb mutation, editor
// redirects. Every operation takes a vault reservation, acquires it,
// mutates the in-memory pouch entries, and lets Guard.Close flush to disk —
// grounded on lazydocker's pattern of mutating its in-memory container
// cache under ContainerMutex and refreshing the view afterward
// (pkg/commands/docker.go), generalized from "refresh from polling" to
// "drive a deployment driver and persist the result".
package instance

import (
	"context"
	"fmt"

	"github.com/imdario/mergo"
	"github.com/sirupsen/logrus"

	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/deployment"
	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/flecserr"
	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/id"
	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/manifest"
	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/portmap"
	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/proxy"
	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/vault"
)

// Manager performs instance lifecycle operations against a Vault, a set of
// deployment drivers keyed by deployment id, and the proxy control layer.
type Manager struct {
	log      *logrus.Entry
	v        *vault.Vault
	drivers  map[id.DeploymentID]deployment.Driver
	floxy    proxy.Floxy
	confBase string
}

// NewManager builds a Manager. drivers must contain an entry for every
// deployment the vault knows about. confBase is the directory conffiles are
// staged under (one subdirectory per instance id); it may be empty, in
// which case conffile injection is skipped.
func NewManager(log *logrus.Entry, v *vault.Vault, drivers map[id.DeploymentID]deployment.Driver, floxy proxy.Floxy, confBase string) *Manager {
	return &Manager{log: log, v: v, drivers: drivers, floxy: floxy, confBase: confBase}
}

func (m *Manager) driverFor(deploymentID id.DeploymentID) (deployment.Driver, error) {
	d, ok := m.drivers[deploymentID]
	if !ok {
		return nil, flecserr.Newf(flecserr.KindRuntimeFailure, "no deployment driver registered for %q", deploymentID)
	}
	return d, nil
}

// Create allocates a fresh instance id, resolves the manifest, and copies
// its defaults into a new, Stopped instance (spec.md §4.5 "Create").
func (m *Manager) Create(ctx context.Context, appKey id.AppKey, name string, deploymentID id.DeploymentID) (id.InstanceID, error) {
	g := m.v.Grab(vault.NewReservation().
		WithManifests(vault.ModeRead).
		WithDeployments(vault.ModeRead).
		WithInstances(vault.ModeWrite))
	defer func() {
		if err := g.Close(); err != nil {
			m.log.WithError(err).Error("failed to persist instance pouch after create")
		}
	}()

	man, ok := g.Manifests.Get(appKey.String())
	if !ok {
		return 0, flecserr.Newf(flecserr.KindNotFound, "no manifest for %s", appKey)
	}
	if _, ok := g.Deployments.Get(string(deploymentID)); !ok {
		return 0, flecserr.Newf(flecserr.KindNotFound, "no deployment %q", deploymentID)
	}

	if man.Kind == manifest.KindSingle && !man.Single.MultiInstance {
		for _, existing := range g.Instances.All() {
			if existing.AppKey == appKey {
				return 0, flecserr.Newf(flecserr.KindConflict, "app %s does not allow more than one instance", appKey)
			}
		}
	}

	var instanceID id.InstanceID
	for {
		fresh, err := id.NewInstanceID()
		if err != nil {
			return 0, flecserr.Because(flecserr.KindRuntimeFailure, "generate instance id", err)
		}
		if _, taken := g.Instances.Get(fresh.String()); !taken {
			instanceID = fresh
			break
		}
	}

	cfg := vault.NewInstanceConfig()
	if man.Kind == manifest.KindSingle {
		defaults := vault.InstanceConfig{
			EnvOverrides: man.Single.EnvDefaults,
			Labels:       man.Single.Labels,
		}
		if len(man.Single.Ports) > 0 {
			defaults.Ports = map[portmap.Protocol][]portmap.Mapping{portmap.TCP: man.Single.Ports}
		}
		for _, cf := range man.Single.ConfFiles {
			defaults.ConfigFiles = append(defaults.ConfigFiles, vault.InstanceConfigFile{ConfigFile: cf})
		}
		if err := mergo.Merge(&cfg, defaults, mergo.WithAppendSlice); err != nil {
			return 0, flecserr.Because(flecserr.KindRuntimeFailure, "merge manifest defaults into instance config", err)
		}
	}

	inst := vault.Instance{
		ID:           instanceID,
		Name:         name,
		AppKey:       appKey,
		DeploymentID: deploymentID,
		Desired:      vault.DesiredStopped,
		Status:       vault.StatusNotCreated,
		Config:       cfg,
	}
	g.Instances.Put(instanceID.String(), inst)

	return instanceID, nil
}

// containerName is the name instances are created under in the runtime.
func containerName(instanceID id.InstanceID) string {
	return fmt.Sprintf("flecs-%s", instanceID)
}
