package vault

import (
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/id"
	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/manifest"
	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/vault/pouch"
)

// rwLocker is the lock primitive backing each pouch's reservation slot,
// kept as its own type so reservation.go can hold lock handles without
// reaching into sync directly.
type rwLocker struct {
	sync.RWMutex
}

// lockTable is the fixed-order set of per-pouch locks a Reservation's Grab
// acquires from (spec.md §4.2 "Deadlock avoidance").
type lockTable struct {
	apps        *lockHandle
	manifests   *lockHandle
	secrets     *lockHandle
	deployments *lockHandle
	instances   *lockHandle
	providers   *lockHandle
}

func newLockTable() lockTable {
	return lockTable{
		apps:        &lockHandle{name: "apps", mu: &rwLocker{}},
		manifests:   &lockHandle{name: "manifests", mu: &rwLocker{}},
		secrets:     &lockHandle{name: "secrets", mu: &rwLocker{}},
		deployments: &lockHandle{name: "deployments", mu: &rwLocker{}},
		instances:   &lockHandle{name: "instances", mu: &rwLocker{}},
		providers:   &lockHandle{name: "providers", mu: &rwLocker{}},
	}
}

// Vault owns exactly one instance each of the six pouches (spec.md §3), and
// serializes access through the reservation protocol in reservation.go.
type Vault struct {
	log *logrus.Entry

	apps        *pouch.Pouch[App]
	manifests   *pouch.Pouch[manifest.Manifest]
	deployments *pouch.Pouch[Deployment]
	instances   *pouch.Pouch[Instance]
	providers   *pouch.Pouch[Providers]
	secrets     *pouch.Pouch[Secrets]

	locks lockTable
}

// Paths collects the on-disk locations for each pouch document (spec.md
// §6 "On-disk layout").
type Paths struct {
	Apps        string
	Manifests   string
	Deployments string
	Instances   string
	Providers   string
	Secrets     string
}

// DefaultPaths derives the conventional pouch file layout from a base path.
func DefaultPaths(basePath string) Paths {
	return Paths{
		Apps:        filepath.Join(basePath, "apps", "apps.json"),
		Manifests:   filepath.Join(basePath, "manifests", "manifests.json"),
		Deployments: filepath.Join(basePath, "deployments", "deployments.json"),
		Instances:   filepath.Join(basePath, "instances", "instances.json"),
		Providers:   filepath.Join(basePath, "providers", "providers.json"),
		Secrets:     filepath.Join(basePath, "device", "secrets.json"),
	}
}

// Open constructs a Vault and loads every pouch from disk in dependency
// order: secrets, manifests, deployments, apps, instances, providers
// (spec.md §4.2 "Object rehydration"). Load failures are logged and never
// prevent Open from succeeding.
func Open(paths Paths, log *logrus.Entry) *Vault {
	v := &Vault{
		log:         log,
		secrets:     pouch.New[Secrets](paths.Secrets, log),
		manifests:   pouch.New[manifest.Manifest](paths.Manifests, log),
		deployments: pouch.New[Deployment](paths.Deployments, log),
		apps:        pouch.New[App](paths.Apps, log),
		instances:   pouch.New[Instance](paths.Instances, log),
		providers:   pouch.New[Providers](paths.Providers, log),
		locks:       newLockTable(),
	}

	v.secrets.Load()
	v.manifests.Load()
	v.deployments.Load()
	v.apps.Load()
	v.instances.Load()
	v.providers.Load()

	v.dropDanglingInstances()

	return v
}

// dropDanglingInstances discards any instance whose deployment or manifest
// no longer resolves, logging the orphan (spec.md §4.2 "Dangling
// references … are dropped with an error log; the orphan is not
// resurrected").
func (v *Vault) dropDanglingInstances() {
	for key, inst := range v.instances.All() {
		if _, ok := v.deployments.Get(string(inst.DeploymentID)); !ok {
			v.log.WithField("instance", key).WithField("deployment", inst.DeploymentID).
				Error("dropping instance referencing unknown deployment")
			v.instances.Delete(key)
			continue
		}
		if _, ok := v.manifests.Get(inst.AppKey.String()); !ok {
			v.log.WithField("instance", key).WithField("appKey", inst.AppKey).
				Error("dropping instance referencing unknown manifest")
			v.instances.Delete(key)
		}
	}
}

// instanceKey is the pouch key an instance id is stored under.
func instanceKey(instanceID id.InstanceID) string { return instanceID.String() }

// appKeyOf is the pouch key an AppKey is stored under.
func appKeyOf(key id.AppKey) string { return key.String() }
