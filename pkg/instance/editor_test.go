package instance

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/deployment"
	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/id"
	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/manifest"
	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/proxy"
	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/vault"
)

func TestEditorRedirectUnknownPortIsNotFound(t *testing.T) {
	single := basicSingle()
	single.Editors = []manifest.Editor{{Name: "ui", Port: 8080}}
	fx := newTestFixture(t, single)
	ctx := context.Background()
	instanceID, err := fx.mgr.Create(ctx, fx.appKey, "test-1", fx.deployID)
	require.NoError(t, err)

	_, err = fx.mgr.EditorRedirect(ctx, instanceID, 9999)
	require.Error(t, err)
}

func TestEditorRedirectRejectsSelfServingEditor(t *testing.T) {
	single := basicSingle()
	single.Editors = []manifest.Editor{{Name: "ui", Port: 8080, SupportsReverseProxy: true}}
	fx := newTestFixture(t, single)
	ctx := context.Background()
	instanceID, err := fx.mgr.Create(ctx, fx.appKey, "test-1", fx.deployID)
	require.NoError(t, err)

	_, err = fx.mgr.EditorRedirect(ctx, instanceID, 8080)
	require.Error(t, err)
}

func TestEditorRedirectRequiresRunningInstance(t *testing.T) {
	single := basicSingle()
	single.Editors = []manifest.Editor{{Name: "ui", Port: 8080}}
	fx := newTestFixture(t, single)
	ctx := context.Background()
	instanceID, err := fx.mgr.Create(ctx, fx.appKey, "test-1", fx.deployID)
	require.NoError(t, err)

	_, err = fx.mgr.EditorRedirect(ctx, instanceID, 8080)
	require.Error(t, err)
}

func TestEditorRedirectAllocatesFreePort(t *testing.T) {
	single := basicSingle()
	single.Editors = []manifest.Editor{{Name: "ui", Port: 8080}}
	log := logrus.NewEntry(logrus.New())
	paths := vault.DefaultPaths(t.TempDir())
	v := vault.Open(paths, log)

	appKey := id.AppKey{Name: "tech.flecs.test", Version: "1.0.0"}
	deployID := id.DeploymentID("docker-default")
	g := v.Grab(vault.NewReservation().WithManifests(vault.ModeWrite).WithDeployments(vault.ModeWrite))
	g.Manifests.Put(appKey.String(), manifest.Manifest{Key: appKey, Kind: manifest.KindSingle, Single: single})
	g.Deployments.Put(string(deployID), vault.Deployment{ID: deployID, Kind: vault.DeploymentDocker, Default: true})
	require.NoError(t, g.Close())

	driver := newFakeDriver()
	floxy := proxy.NewRegistry(20000, 20010, nil)
	mgr := NewManager(log, v, map[id.DeploymentID]deployment.Driver{deployID: driver}, floxy, "")

	ctx := context.Background()
	instanceID, err := mgr.Create(ctx, appKey, "test-1", deployID)
	require.NoError(t, err)
	require.NoError(t, mgr.Start(ctx, instanceID))

	gw := v.Grab(vault.NewReservation().WithInstances(vault.ModeWrite))
	inst, _ := gw.Instances.Get(instanceID.String())
	inst.Config.Networks = append(inst.Config.Networks, vault.NetworkAttachment{NetworkID: "bridge", Address: "172.17.0.2"})
	gw.Instances.Put(instanceID.String(), inst)
	require.NoError(t, gw.Close())

	allocated, err := mgr.EditorRedirect(ctx, instanceID, 8080)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, allocated, 20000)
	assert.LessOrEqual(t, allocated, 20010)
	assert.Equal(t, 1, floxy.Reloads())
}
