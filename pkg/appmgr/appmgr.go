// Package appmgr implements app lifecycle operations (spec.md §4.6):
// install and uninstall an AppKey across the deployments it should run on.
// Grounded on lazydocker's service-definition handling in
// pkg/commands/services.go, generalized from "read compose services" into
// "drive N deployment drivers to install/uninstall one app and only commit
// success once every driver agrees".
package appmgr

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/deployment"
	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/flecserr"
	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/id"
	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/manifest"
	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/vault"
)

// Catalogue is the narrow contract the app manager needs from the remote
// catalogue/license service: fetch a manifest by key. Spec.md §1 excludes
// the catalogue client's own transport and auth from core scope; this
// interface is all the core depends on.
type Catalogue interface {
	FetchManifest(ctx context.Context, appKey id.AppKey) (*manifest.Manifest, error)
}

// Manager performs app install/uninstall against a Vault, a Catalogue, and
// the deployment drivers registered for the process.
type Manager struct {
	log       *logrus.Entry
	v         *vault.Vault
	catalogue Catalogue
	drivers   map[id.DeploymentID]deployment.Driver
}

// NewManager builds a Manager.
func NewManager(log *logrus.Entry, v *vault.Vault, catalogue Catalogue, drivers map[id.DeploymentID]deployment.Driver) *Manager {
	return &Manager{log: log, v: v, catalogue: catalogue, drivers: drivers}
}

// Install downloads appKey's manifest from the catalogue, persists it,
// registers the App if absent, and asks every named deployment to install
// the image. Desired status becomes Installed only when every deployment
// reports success (spec.md §4.6 "Install").
func (m *Manager) Install(ctx context.Context, appKey id.AppKey, deploymentIDs []id.DeploymentID) error {
	man, err := m.catalogue.FetchManifest(ctx, appKey)
	if err != nil {
		return flecserr.Because(flecserr.KindRuntimeFailure, "fetch manifest from catalogue", err)
	}

	g := m.v.Grab(vault.NewReservation().
		WithManifests(vault.ModeWrite).
		WithDeployments(vault.ModeRead).
		WithApps(vault.ModeWrite))
	defer func() {
		if cerr := g.Close(); cerr != nil {
			m.log.WithError(cerr).Error("failed to persist app/manifest pouches after install")
		}
	}()

	g.Manifests.Put(appKey.String(), *man)

	app, ok := g.Apps.Get(appKey.String())
	if !ok {
		app = vault.App{Key: appKey, Desired: vault.DesiredNotInstalled}
	}

	allSucceeded := true
	for _, deploymentID := range deploymentIDs {
		if _, ok := g.Deployments.Get(string(deploymentID)); !ok {
			return flecserr.Newf(flecserr.KindNotFound, "no deployment %q", deploymentID)
		}
		driver, err := m.driverFor(deploymentID)
		if err != nil {
			return err
		}

		record := findRecord(app.Installation, deploymentID)
		if record == nil {
			app.Installation = append(app.Installation, vault.AppInstallationRecord{
				DeploymentID: deploymentID,
				ManifestKey:  appKey,
				Status:       vault.DesiredNotInstalled,
			})
			record = &app.Installation[len(app.Installation)-1]
		}

		if err := installOnDriver(ctx, driver, man); err != nil {
			m.log.WithError(err).WithField("deployment", deploymentID).Error("failed to install app image")
			record.Status = vault.DesiredNotInstalled
			allSucceeded = false
			continue
		}
		record.Status = vault.DesiredInstalled
	}

	if allSucceeded {
		app.Desired = vault.DesiredInstalled
	}
	g.Apps.Put(appKey.String(), app)

	if !allSucceeded {
		return flecserr.Newf(flecserr.KindRuntimeFailure, "app %s failed to install on at least one deployment", appKey)
	}
	return nil
}

// Uninstall asks every deployment the app is installed on to remove its
// image, and on full success removes the App from the pouch. Fails with a
// conflict if any instance of the app still exists (spec.md §4.6
// "Uninstall").
func (m *Manager) Uninstall(ctx context.Context, appKey id.AppKey) error {
	check := m.v.Grab(vault.NewReservation().WithInstances(vault.ModeRead))
	for _, inst := range check.Instances.All() {
		if inst.AppKey == appKey {
			_ = check.Close()
			return flecserr.Newf(flecserr.KindConflict, "app %s still has instances; delete them first", appKey)
		}
	}
	if err := check.Close(); err != nil {
		m.log.WithError(err).Error("failed to release instance pouch after uninstall conflict check")
	}

	g := m.v.Grab(vault.NewReservation().
		WithApps(vault.ModeWrite).
		WithManifests(vault.ModeWrite))
	defer func() {
		if err := g.Close(); err != nil {
			m.log.WithError(err).Error("failed to persist app/manifest pouches after uninstall")
		}
	}()

	app, ok := g.Apps.Get(appKey.String())
	if !ok {
		return flecserr.Newf(flecserr.KindNotFound, "no app %s", appKey)
	}

	man, _ := g.Manifests.Get(appKey.String())

	allSucceeded := true
	for _, record := range app.Installation {
		driver, err := m.driverFor(record.DeploymentID)
		if err != nil {
			return err
		}
		if err := uninstallFromDriver(ctx, driver, man); err != nil {
			m.log.WithError(err).WithField("deployment", record.DeploymentID).Error("failed to uninstall app image")
			allSucceeded = false
		}
	}

	if !allSucceeded {
		return flecserr.Newf(flecserr.KindRuntimeFailure, "app %s failed to uninstall from at least one deployment", appKey)
	}

	g.Apps.Delete(appKey.String())
	g.Manifests.Delete(appKey.String())
	return nil
}

func (m *Manager) driverFor(deploymentID id.DeploymentID) (deployment.Driver, error) {
	d, ok := m.drivers[deploymentID]
	if !ok {
		return nil, flecserr.Newf(flecserr.KindRuntimeFailure, "no deployment driver registered for %q", deploymentID)
	}
	return d, nil
}

func findRecord(records []vault.AppInstallationRecord, deploymentID id.DeploymentID) *vault.AppInstallationRecord {
	for i := range records {
		if records[i].DeploymentID == deploymentID {
			return &records[i]
		}
	}
	return nil
}

func installOnDriver(ctx context.Context, driver deployment.Driver, man *manifest.Manifest) error {
	if man.Kind != manifest.KindSingle || man.Single == nil {
		return flecserr.New(flecserr.KindUnsupportedForKind, "installing a multi-service manifest is not supported")
	}
	return driver.PullImage(ctx, man.Single.Image, nil)
}

func uninstallFromDriver(ctx context.Context, driver deployment.Driver, man manifest.Manifest) error {
	if man.Kind != manifest.KindSingle || man.Single == nil {
		return nil
	}
	return driver.RemoveImage(ctx, man.Single.Image, false)
}
