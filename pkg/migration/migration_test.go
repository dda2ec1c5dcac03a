package migration

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/id"
	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/manifest"
	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/usb"
	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/vault"
)

type fakeUSBReader struct{ devices map[string]usb.Device }

func (r fakeUSBReader) Read() (map[string]usb.Device, error) { return r.devices, nil }

func TestNeededReportsFalseWithoutLegacyFiles(t *testing.T) {
	paths := DefaultPaths(t.TempDir())
	assert.False(t, Needed(paths))
}

func TestNeededReportsTrueWhenDockerFileExists(t *testing.T) {
	base := t.TempDir()
	paths := DefaultPaths(base)
	require.NoError(t, os.MkdirAll(filepath.Dir(paths.DockerInstances), 0o755))
	require.NoError(t, os.WriteFile(paths.DockerInstances, []byte("[]"), 0o644))
	assert.True(t, Needed(paths))
}

func TestRunMigratesAppsAndInstancesThenDeletesLegacyFiles(t *testing.T) {
	base := t.TempDir()
	paths := DefaultPaths(base)
	require.NoError(t, os.MkdirAll(filepath.Dir(paths.Apps), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Dir(paths.DockerInstances), 0o755))

	appKey := id.AppKey{Name: "tech.flecs.test", Version: "1.0.0"}
	appsData, err := json.Marshal([]legacyApp{{AppKey: appKey.Name, Version: appKey.Version, Status: "installed"}})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(paths.Apps, appsData, 0o644))

	instanceID, err := id.NewInstanceID()
	require.NoError(t, err)
	instData, err := json.Marshal([]legacyInstance{{
		InstanceID: instanceID.String(),
		AppKey:     appKey.Name,
		Version:    appKey.Version,
		Name:       "legacy-1",
		Running:    true,
		USBDevices: []legacyUSB{{Port: "1-2"}},
	}})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(paths.DockerInstances, instData, 0o644))

	log := logrus.NewEntry(logrus.New())
	v := vault.Open(vault.DefaultPaths(t.TempDir()), log)
	g := v.Grab(vault.NewReservation().WithManifests(vault.ModeWrite).WithDeployments(vault.ModeWrite))
	g.Manifests.Put(appKey.String(), manifest.Manifest{Key: appKey, Kind: manifest.KindSingle, Single: &manifest.Single{Key: appKey, Image: "flecs/test"}})
	dockerDep := id.DeploymentID("docker-default")
	g.Deployments.Put(string(dockerDep), vault.Deployment{ID: dockerDep, Kind: vault.DeploymentDocker})
	require.NoError(t, g.Close())

	reader := fakeUSBReader{devices: map[string]usb.Device{"1-2": {Port: "1-2", Bus: 3, Device: 7}}}
	migrator := NewMigrator(log, dockerDep, id.DeploymentID("compose-default"), reader)

	require.NoError(t, migrator.Run(v, paths))

	gr := v.Grab(vault.NewReservation().WithApps(vault.ModeRead).WithInstances(vault.ModeRead))
	defer gr.Close()
	app, ok := gr.Apps.Get(appKey.String())
	require.True(t, ok)
	assert.Equal(t, vault.DesiredInstalled, app.Desired)

	inst, ok := gr.Instances.Get(instanceID.String())
	require.True(t, ok)
	require.Len(t, inst.Config.USB, 1)
	assert.Equal(t, 3, inst.Config.USB[0].Bus)
	assert.Equal(t, 7, inst.Config.USB[0].Device)

	assert.NoFileExists(t, paths.Apps)
	assert.NoFileExists(t, paths.DockerInstances)
}

func TestMigrateAppsSkipsUnrecoverableManifest(t *testing.T) {
	base := t.TempDir()
	paths := DefaultPaths(base)
	require.NoError(t, os.MkdirAll(filepath.Dir(paths.Apps), 0o755))

	appsData, err := json.Marshal([]legacyApp{{AppKey: "tech.flecs.missing", Version: "1.0.0", Status: "installed"}})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(paths.Apps, appsData, 0o644))

	log := logrus.NewEntry(logrus.New())
	v := vault.Open(vault.DefaultPaths(t.TempDir()), log)
	migrator := NewMigrator(log, id.DeploymentID("docker-default"), id.DeploymentID("compose-default"), fakeUSBReader{devices: map[string]usb.Device{}})

	require.NoError(t, migrator.migrateApps(v, paths.Apps))

	g := v.Grab(vault.NewReservation().WithApps(vault.ModeRead))
	defer g.Close()
	assert.Equal(t, 0, g.Apps.Len())
}
