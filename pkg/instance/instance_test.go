package instance

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/deployment"
	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/id"
	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/manifest"
	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/vault"
)

// fakeDriver is an in-memory deployment.Driver double for exercising
// instance lifecycle operations without a real container runtime.
type fakeDriver struct {
	containers  map[string]bool
	volumes     map[string][]byte
	nextID      int
	failStart   bool
	failCreate  bool
	failConnect bool
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{containers: make(map[string]bool), volumes: make(map[string][]byte)}
}

func (d *fakeDriver) CreateContainer(ctx context.Context, spec deployment.CreateSpec) (string, error) {
	if d.failCreate {
		return "", assertErr("create failed")
	}
	d.nextID++
	cid := spec.ContainerName
	d.containers[cid] = false
	return cid, nil
}
func (d *fakeDriver) StartContainer(ctx context.Context, containerID string) error {
	if d.failStart {
		return assertErr("start failed")
	}
	d.containers[containerID] = true
	return nil
}
func (d *fakeDriver) StopContainer(ctx context.Context, containerID string, timeout *int) error {
	d.containers[containerID] = false
	return nil
}
func (d *fakeDriver) RemoveContainer(ctx context.Context, containerID string, force bool) error {
	delete(d.containers, containerID)
	return nil
}
func (d *fakeDriver) InspectContainer(ctx context.Context, containerID string) (deployment.ContainerStatus, error) {
	state := deployment.StatusCreated
	if d.containers[containerID] {
		state = deployment.StatusRunning
	}
	return deployment.ContainerStatus{ID: containerID, State: state, Running: d.containers[containerID]}, nil
}
func (d *fakeDriver) ContainerLogs(ctx context.Context, containerID string, stdout, stderr bool) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(nil)), nil
}
func (d *fakeDriver) CopyIntoContainer(ctx context.Context, containerID, destPath string, tarStream io.Reader) error {
	return nil
}
func (d *fakeDriver) CopyFromContainer(ctx context.Context, containerID, srcPath string) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(nil)), nil
}
func (d *fakeDriver) PullImage(ctx context.Context, ref string, onProgress func(string)) error { return nil }
func (d *fakeDriver) PullImageWithToken(ctx context.Context, ref, token string, onProgress func(string)) error {
	return nil
}
func (d *fakeDriver) RemoveImage(ctx context.Context, ref string, force bool) error { return nil }
func (d *fakeDriver) HasImage(ctx context.Context, ref string) (bool, error)        { return true, nil }
func (d *fakeDriver) ImageSize(ctx context.Context, ref string) (int64, error)      { return 0, nil }
func (d *fakeDriver) ExportImage(ctx context.Context, ref string, w io.Writer) error { return nil }
func (d *fakeDriver) ImportImage(ctx context.Context, r io.Reader) error             { return nil }
func (d *fakeDriver) CopyFromImage(ctx context.Context, ref, srcPath string) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(nil)), nil
}
func (d *fakeDriver) CreateNetwork(ctx context.Context, cfg deployment.NetworkConfig) (string, error) {
	return cfg.Name, nil
}
func (d *fakeDriver) InspectNetwork(ctx context.Context, name string) (deployment.NetworkInfo, error) {
	return deployment.NetworkInfo{ID: name, Name: name}, nil
}
func (d *fakeDriver) ListNetworks(ctx context.Context) ([]deployment.NetworkInfo, error) { return nil, nil }
func (d *fakeDriver) RemoveNetwork(ctx context.Context, name string) error               { return nil }
func (d *fakeDriver) ConnectNetwork(ctx context.Context, containerID, networkName, ip string) error {
	if d.failConnect {
		return assertErr("connect failed")
	}
	return nil
}
func (d *fakeDriver) DisconnectNetwork(ctx context.Context, containerID, networkName string) error {
	return nil
}
func (d *fakeDriver) CreateVolume(ctx context.Context, name string) error { return nil }
func (d *fakeDriver) InspectVolume(ctx context.Context, name string) (deployment.VolumeInfo, error) {
	return deployment.VolumeInfo{Name: name}, nil
}
func (d *fakeDriver) RemoveVolume(ctx context.Context, name string, force bool) error { return nil }
func (d *fakeDriver) ExportVolume(ctx context.Context, name string, w io.Writer) error {
	_, err := w.Write(d.volumes[name])
	return err
}
func (d *fakeDriver) ImportVolume(ctx context.Context, name string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	d.volumes[name] = data
	return nil
}
func (d *fakeDriver) CopyConfigFile(ctx context.Context, containerID, destPath string, content []byte) error {
	return nil
}
func (d *fakeDriver) Close() error { return nil }

type simpleErr string

func (e simpleErr) Error() string { return string(e) }
func assertErr(msg string) error  { return simpleErr(msg) }

// testFixture wires a Manager against a fresh vault in a temporary directory with one
// manifest, one deployment, and a fake driver already registered.
type testFixture struct {
	mgr        *Manager
	v          *vault.Vault
	driver     *fakeDriver
	appKey     id.AppKey
	deployID   id.DeploymentID
}

func newTestFixture(t *testing.T, single *manifest.Single) *testFixture {
	t.Helper()
	paths := vault.DefaultPaths(t.TempDir())
	log := logrus.NewEntry(logrus.New())
	v := vault.Open(paths, log)

	appKey := id.AppKey{Name: "tech.flecs.test", Version: "1.0.0"}
	deployID := id.DeploymentID("docker-default")

	g := v.Grab(vault.NewReservation().WithManifests(vault.ModeWrite).WithDeployments(vault.ModeWrite))
	g.Manifests.Put(appKey.String(), manifest.Manifest{Key: appKey, Kind: manifest.KindSingle, Single: single})
	g.Deployments.Put(string(deployID), vault.Deployment{ID: deployID, Kind: vault.DeploymentDocker, Default: true})
	require.NoError(t, g.Close())

	driver := newFakeDriver()
	mgr := NewManager(log, v, map[id.DeploymentID]deployment.Driver{deployID: driver}, nil, "")

	return &testFixture{mgr: mgr, v: v, driver: driver, appKey: appKey, deployID: deployID}
}

func mustInstanceID(t *testing.T) id.InstanceID {
	t.Helper()
	v, err := id.NewInstanceID()
	require.NoError(t, err)
	return v
}

func basicSingle() *manifest.Single {
	return &manifest.Single{
		Key:   id.AppKey{Name: "tech.flecs.test", Version: "1.0.0"},
		Image: "flecs/test:1.0.0",
	}
}
