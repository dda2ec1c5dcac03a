package appmgr

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/deployment"
	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/id"
	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/manifest"
	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/vault"
)

type fakeCatalogue struct {
	manifest *manifest.Manifest
	err      error
}

func (c fakeCatalogue) FetchManifest(ctx context.Context, appKey id.AppKey) (*manifest.Manifest, error) {
	return c.manifest, c.err
}

type fakeDriver struct {
	failPull   bool
	failRemove bool
	pulled     []string
	removed    []string
}

func (d *fakeDriver) CreateContainer(ctx context.Context, spec deployment.CreateSpec) (string, error) {
	return "", nil
}
func (d *fakeDriver) StartContainer(ctx context.Context, containerID string) error { return nil }
func (d *fakeDriver) StopContainer(ctx context.Context, containerID string, timeout *int) error {
	return nil
}
func (d *fakeDriver) RemoveContainer(ctx context.Context, containerID string, force bool) error {
	return nil
}
func (d *fakeDriver) InspectContainer(ctx context.Context, containerID string) (deployment.ContainerStatus, error) {
	return deployment.ContainerStatus{}, nil
}
func (d *fakeDriver) PullImage(ctx context.Context, ref string, onProgress func(string)) error {
	if d.failPull {
		return assertErr("pull failed")
	}
	d.pulled = append(d.pulled, ref)
	return nil
}
func (d *fakeDriver) RemoveImage(ctx context.Context, ref string, force bool) error {
	if d.failRemove {
		return assertErr("remove failed")
	}
	d.removed = append(d.removed, ref)
	return nil
}
func (d *fakeDriver) HasImage(ctx context.Context, ref string) (bool, error) { return true, nil }
func (d *fakeDriver) ContainerLogs(ctx context.Context, containerID string, stdout, stderr bool) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(nil)), nil
}
func (d *fakeDriver) CopyIntoContainer(ctx context.Context, containerID, destPath string, tarStream io.Reader) error {
	return nil
}
func (d *fakeDriver) CopyFromContainer(ctx context.Context, containerID, srcPath string) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(nil)), nil
}
func (d *fakeDriver) PullImageWithToken(ctx context.Context, ref, token string, onProgress func(string)) error {
	return nil
}
func (d *fakeDriver) ImageSize(ctx context.Context, ref string) (int64, error)       { return 0, nil }
func (d *fakeDriver) ExportImage(ctx context.Context, ref string, w io.Writer) error { return nil }
func (d *fakeDriver) ImportImage(ctx context.Context, r io.Reader) error             { return nil }
func (d *fakeDriver) CopyFromImage(ctx context.Context, ref, srcPath string) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(nil)), nil
}
func (d *fakeDriver) CreateNetwork(ctx context.Context, cfg deployment.NetworkConfig) (string, error) {
	return "", nil
}
func (d *fakeDriver) InspectNetwork(ctx context.Context, name string) (deployment.NetworkInfo, error) {
	return deployment.NetworkInfo{}, nil
}
func (d *fakeDriver) ListNetworks(ctx context.Context) ([]deployment.NetworkInfo, error) { return nil, nil }
func (d *fakeDriver) RemoveNetwork(ctx context.Context, name string) error               { return nil }
func (d *fakeDriver) ConnectNetwork(ctx context.Context, containerID, networkName, ip string) error {
	return nil
}
func (d *fakeDriver) DisconnectNetwork(ctx context.Context, containerID, networkName string) error {
	return nil
}
func (d *fakeDriver) CreateVolume(ctx context.Context, name string) error { return nil }
func (d *fakeDriver) InspectVolume(ctx context.Context, name string) (deployment.VolumeInfo, error) {
	return deployment.VolumeInfo{}, nil
}
func (d *fakeDriver) RemoveVolume(ctx context.Context, name string, force bool) error  { return nil }
func (d *fakeDriver) ExportVolume(ctx context.Context, name string, w io.Writer) error { return nil }
func (d *fakeDriver) ImportVolume(ctx context.Context, name string, r io.Reader) error { return nil }
func (d *fakeDriver) CopyConfigFile(ctx context.Context, containerID, destPath string, content []byte) error {
	return nil
}
func (d *fakeDriver) Close() error { return nil }

type simpleErr string

func (e simpleErr) Error() string { return string(e) }
func assertErr(msg string) error  { return simpleErr(msg) }

func newFixture(t *testing.T) (*Manager, *vault.Vault, id.AppKey, id.DeploymentID, *fakeDriver) {
	t.Helper()
	log := logrus.NewEntry(logrus.New())
	v := vault.Open(vault.DefaultPaths(t.TempDir()), log)

	appKey := id.AppKey{Name: "tech.flecs.test", Version: "1.0.0"}
	deploymentID := id.DeploymentID("docker-default")

	g := v.Grab(vault.NewReservation().WithDeployments(vault.ModeWrite))
	g.Deployments.Put(string(deploymentID), vault.Deployment{ID: deploymentID, Kind: vault.DeploymentDocker, Default: true})
	require.NoError(t, g.Close())

	single := &manifest.Single{Key: appKey, Image: "flecs/test:1.0.0"}
	catalogue := fakeCatalogue{manifest: &manifest.Manifest{Key: appKey, Kind: manifest.KindSingle, Single: single}}

	driver := &fakeDriver{}
	mgr := NewManager(log, v, catalogue, map[id.DeploymentID]deployment.Driver{deploymentID: driver})
	return mgr, v, appKey, deploymentID, driver
}

func TestInstallSucceedsOnEveryDeployment(t *testing.T) {
	mgr, v, appKey, deploymentID, driver := newFixture(t)
	ctx := context.Background()

	require.NoError(t, mgr.Install(ctx, appKey, []id.DeploymentID{deploymentID}))

	g := v.Grab(vault.NewReservation().WithApps(vault.ModeRead))
	defer g.Close()
	app, ok := g.Apps.Get(appKey.String())
	require.True(t, ok)
	assert.Equal(t, vault.DesiredInstalled, app.Desired)
	assert.Contains(t, driver.pulled, "flecs/test:1.0.0")
}

func TestInstallLeavesDesiredNotInstalledOnDriverFailure(t *testing.T) {
	mgr, v, appKey, deploymentID, driver := newFixture(t)
	driver.failPull = true
	ctx := context.Background()

	err := mgr.Install(ctx, appKey, []id.DeploymentID{deploymentID})
	require.Error(t, err)

	g := v.Grab(vault.NewReservation().WithApps(vault.ModeRead))
	defer g.Close()
	app, ok := g.Apps.Get(appKey.String())
	require.True(t, ok)
	assert.Equal(t, vault.DesiredNotInstalled, app.Desired)
}

func TestUninstallFailsWithConflictWhenInstancesRemain(t *testing.T) {
	mgr, v, appKey, deploymentID, _ := newFixture(t)
	ctx := context.Background()
	require.NoError(t, mgr.Install(ctx, appKey, []id.DeploymentID{deploymentID}))

	g := v.Grab(vault.NewReservation().WithInstances(vault.ModeWrite))
	instanceID, err := id.NewInstanceID()
	require.NoError(t, err)
	g.Instances.Put(instanceID.String(), vault.Instance{ID: instanceID, AppKey: appKey, DeploymentID: deploymentID})
	require.NoError(t, g.Close())

	err = mgr.Uninstall(ctx, appKey)
	require.Error(t, err)
}

func TestUninstallRemovesAppOnSuccess(t *testing.T) {
	mgr, v, appKey, deploymentID, driver := newFixture(t)
	ctx := context.Background()
	require.NoError(t, mgr.Install(ctx, appKey, []id.DeploymentID{deploymentID}))

	require.NoError(t, mgr.Uninstall(ctx, appKey))
	assert.Contains(t, driver.removed, "flecs/test:1.0.0")

	g := v.Grab(vault.NewReservation().WithApps(vault.ModeRead))
	defer g.Close()
	_, ok := g.Apps.Get(appKey.String())
	assert.False(t, ok)
}
