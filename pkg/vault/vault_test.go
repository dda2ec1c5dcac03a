package vault

import (
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/id"
	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/manifest"
)

func testLog() *logrus.Entry {
	l := logrus.New()
	l.Out = io.Discard
	return l.WithField("test", true)
}

func openTestVault(t *testing.T) *Vault {
	t.Helper()
	return Open(DefaultPaths(t.TempDir()), testLog())
}

func TestOpenStartsEmpty(t *testing.T) {
	v := openTestVault(t)
	g := v.Grab(NewReservation().WithInstances(ModeRead))
	defer g.Close()
	assert.Equal(t, 0, g.Instances.Len())
}

func TestGrabOnlyExposesReservedPouches(t *testing.T) {
	v := openTestVault(t)
	g := v.Grab(NewReservation().WithApps(ModeRead))
	defer g.Close()

	assert.NotNil(t, g.Apps)
	assert.Nil(t, g.Instances, "instances were not reserved and must stay absent at the type level")
}

func TestWriteGuardFlushesOnClose(t *testing.T) {
	dir := t.TempDir()
	paths := DefaultPaths(dir)
	v := Open(paths, testLog())

	iid, err := id.NewInstanceID()
	require.NoError(t, err)

	// Open drops instances whose deployment or manifest is missing, so seed
	// both alongside the instance.
	appKey := id.AppKey{Name: "tech.flecs.test", Version: "1.0.0"}
	g := v.Grab(NewReservation().WithManifests(ModeWrite).WithDeployments(ModeWrite).WithInstances(ModeWrite))
	g.Manifests.Put(appKey.String(), manifest.Manifest{Key: appKey})
	g.Deployments.Put("docker-default", Deployment{ID: "docker-default", Kind: DeploymentDocker})
	g.Instances.Put(iid.String(), Instance{ID: iid, Name: "i1", AppKey: appKey, DeploymentID: "docker-default", Desired: DesiredStopped})
	require.NoError(t, g.Close())

	reopened := Open(paths, testLog())
	g2 := reopened.Grab(NewReservation().WithInstances(ModeRead))
	defer g2.Close()
	got, ok := g2.Instances.Get(iid.String())
	require.True(t, ok)
	assert.Equal(t, "i1", got.Name)
	assert.Equal(t, filepath.Join(dir, "instances", "instances.json"), paths.Instances)
}

func TestConcurrentReadGrabsDoNotBlock(t *testing.T) {
	v := openTestVault(t)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g := v.Grab(NewReservation().WithApps(ModeRead).WithInstances(ModeRead))
			defer g.Close()
			time.Sleep(time.Millisecond)
		}()
	}
	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("concurrent read grabs should not serialize")
	}
}

func TestDroppingDanglingInstanceReference(t *testing.T) {
	dir := t.TempDir()
	paths := DefaultPaths(dir)

	seed := Open(paths, testLog())
	iid, err := id.NewInstanceID()
	require.NoError(t, err)
	g := seed.Grab(NewReservation().WithInstances(ModeWrite))
	g.Instances.Put(iid.String(), Instance{
		ID:           iid,
		DeploymentID: "nonexistent-deployment",
		AppKey:       id.AppKey{Name: "tech.flecs.flunder", Version: "1.0.0"},
	})
	require.NoError(t, g.Close())

	reopened := Open(paths, testLog())
	g2 := reopened.Grab(NewReservation().WithInstances(ModeRead))
	defer g2.Close()
	_, ok := g2.Instances.Get(iid.String())
	assert.False(t, ok, "instance referencing an unknown deployment must be dropped on open")
}
