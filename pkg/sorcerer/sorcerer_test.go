package sorcerer

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/deployment"
	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/flecserr"
	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/id"
	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/instance"
	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/manifest"
	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/provider"
	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/quest"
	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/vault"
)

type fakeDriver struct{ containers map[string]bool }

func newFakeDriver() *fakeDriver { return &fakeDriver{containers: make(map[string]bool)} }

func (d *fakeDriver) CreateContainer(ctx context.Context, spec deployment.CreateSpec) (string, error) {
	d.containers[spec.ContainerName] = false
	return spec.ContainerName, nil
}
func (d *fakeDriver) StartContainer(ctx context.Context, containerID string) error {
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
	return nil
}
func (d *fakeDriver) DisconnectNetwork(ctx context.Context, containerID, networkName string) error {
	return nil
}
func (d *fakeDriver) CreateVolume(ctx context.Context, name string) error { return nil }
func (d *fakeDriver) InspectVolume(ctx context.Context, name string) (deployment.VolumeInfo, error) {
	return deployment.VolumeInfo{Name: name}, nil
}
func (d *fakeDriver) RemoveVolume(ctx context.Context, name string, force bool) error  { return nil }
func (d *fakeDriver) ExportVolume(ctx context.Context, name string, w io.Writer) error { return nil }
func (d *fakeDriver) ImportVolume(ctx context.Context, name string, r io.Reader) error { return nil }
func (d *fakeDriver) CopyConfigFile(ctx context.Context, containerID, destPath string, content []byte) error {
	return nil
}
func (d *fakeDriver) Close() error { return nil }

type fixture struct {
	v        *vault.Vault
	master   *quest.Master
	instSorc *Instances
	provSorc *Providers
	licSorc  *Licensing
	depSorc  *Deployments
	appKey   id.AppKey
	deployID id.DeploymentID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := logrus.NewEntry(logrus.New())
	v := vault.Open(vault.DefaultPaths(t.TempDir()), log)

	appKey := id.AppKey{Name: "tech.flecs.test", Version: "1.0.0"}
	deployID := id.DeploymentID("docker-default")

	g := v.Grab(vault.NewReservation().WithManifests(vault.ModeWrite).WithDeployments(vault.ModeWrite))
	g.Manifests.Put(appKey.String(), manifest.Manifest{
		Key: appKey, Kind: manifest.KindSingle,
		Single: &manifest.Single{Key: appKey, Image: "flecs/test:1.0.0"},
	})
	g.Deployments.Put(string(deployID), vault.Deployment{ID: deployID, Kind: vault.DeploymentDocker, Default: true})
	require.NoError(t, g.Close())

	driver := newFakeDriver()
	instMgr := instance.NewManager(log, v, map[id.DeploymentID]deployment.Driver{deployID: driver}, nil, "")
	provMgr := provider.NewManager(v)
	master := quest.NewMaster()

	return &fixture{
		v:        v,
		master:   master,
		instSorc: NewInstances(master, instMgr),
		provSorc: NewProviders(provMgr),
		licSorc:  NewLicensing(v),
		depSorc:  NewDeployments(v),
		appKey:   appKey,
		deployID: deployID,
	}
}

func waitForQuest(t *testing.T, master *quest.Master, questID id.QuestID) *quest.Quest {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		q, ok := master.Lookup(questID)
		require.True(t, ok)
		if q.State().IsTerminal() {
			return q
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("quest did not finish in time")
	return nil
}

func TestInstancesCreateSchedulesQuest(t *testing.T) {
	fx := newFixture(t)

	questID, err := fx.instSorc.Create(context.Background(), fx.appKey, "web", fx.deployID)
	require.NoError(t, err)
	q := waitForQuest(t, fx.master, questID)
	assert.Equal(t, quest.Success, q.State())
}

func TestInstancesStartIsExclusivePerInstance(t *testing.T) {
	fx := newFixture(t)

	createID, err := fx.instSorc.Create(context.Background(), fx.appKey, "web", fx.deployID)
	require.NoError(t, err)
	waitForQuest(t, fx.master, createID)

	g := fx.v.Grab(vault.NewReservation().WithInstances(vault.ModeRead))
	var instanceID id.InstanceID
	for k := range g.Instances.All() {
		parsed, perr := id.ParseInstanceID(k)
		require.NoError(t, perr)
		instanceID = parsed
	}
	require.NoError(t, g.Close())

	// Reserve the exclusivity key directly so the second Schedule call is
	// guaranteed to observe it taken, rather than racing the first quest's
	// goroutine to completion.
	questID, _, err := quest.Schedule(fx.master, "hold", exclusiveInstanceKey(instanceID), func(q *quest.Quest) (struct{}, error) {
		time.Sleep(50 * time.Millisecond)
		return struct{}{}, nil
	})
	require.NoError(t, err)

	_, err = fx.instSorc.Start(context.Background(), instanceID)
	require.Error(t, err)
	assert.True(t, flecserr.Is(err, flecserr.KindConflict))

	waitForQuest(t, fx.master, questID)
}

func TestLicensingSessionReportsAuthenticationMissing(t *testing.T) {
	fx := newFixture(t)

	_, err := fx.licSorc.Session(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "No authentication available")
}

func TestLicensingSetAndClearSession(t *testing.T) {
	fx := newFixture(t)

	require.NoError(t, fx.licSorc.SetSession(context.Background(), vault.Secrets{Authenticated: true, SessionID: "abc"}))
	secrets, err := fx.licSorc.Session(context.Background())
	require.NoError(t, err)
	assert.True(t, secrets.Authenticated)

	require.NoError(t, fx.licSorc.ClearSession(context.Background()))
	_, err = fx.licSorc.Session(context.Background())
	require.Error(t, err)
}

func TestDeploymentsListReturnsSeeded(t *testing.T) {
	fx := newFixture(t)

	deps, err := fx.depSorc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, deps, 1)
	assert.Equal(t, fx.deployID, deps[0].ID)
}

func TestProvidersSetDefaultRequiresProviding(t *testing.T) {
	fx := newFixture(t)

	instanceID, err := id.NewInstanceID()
	require.NoError(t, err)
	err = fx.provSorc.SetDefault(context.Background(), "mqtt", instanceID)
	require.Error(t, err)
}
