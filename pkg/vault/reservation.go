package vault

import (
	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/flecserr"
	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/manifest"
	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/vault/pouch"
)

// Mode is how a reservation intends to use a pouch.
type Mode int

const (
	// ModeNone means the pouch was not reserved; the guard's corresponding
	// field is left nil so callers cannot accidentally read it.
	ModeNone Mode = iota
	ModeRead
	ModeWrite
)

// Reservation declares, up front, which pouches an operation needs and in
// which mode (spec.md §4.2 "Reservation protocol"). The canonical
// acquisition order — apps, manifests, secrets, deployments, instances,
// providers — is fixed so concurrent reservations can never deadlock
// against each other (spec.md Testable Property 4).
type Reservation struct {
	apps        Mode
	manifests   Mode
	secrets     Mode
	deployments Mode
	instances   Mode
	providers   Mode
}

// NewReservation builds an empty reservation; chain the With* methods to
// declare pouches.
func NewReservation() *Reservation { return &Reservation{} }

func (r *Reservation) WithApps(m Mode) *Reservation        { r.apps = m; return r }
func (r *Reservation) WithManifests(m Mode) *Reservation   { r.manifests = m; return r }
func (r *Reservation) WithSecrets(m Mode) *Reservation     { r.secrets = m; return r }
func (r *Reservation) WithDeployments(m Mode) *Reservation { r.deployments = m; return r }
func (r *Reservation) WithInstances(m Mode) *Reservation   { r.instances = m; return r }
func (r *Reservation) WithProviders(m Mode) *Reservation   { r.providers = m; return r }

// Guard exposes typed, mode-gated access to the pouches a Reservation named.
// A nil field is the type-level signal that the pouch was not reserved in
// that mode (spec.md §4.2: "Attempting to read a pouch not reserved yields
// 'absent' at the type level").
//
// Grab acquires every named lock before returning the guard; Close releases
// them and, for any pouch that was write-reserved, flushes it to disk —
// Go has no destructor, so Close must be called explicitly (spec.md §9
// "an explicit close() in languages that lack [deterministic destruction]").
type Guard struct {
	v *Vault
	r *Reservation

	Apps        *pouch.Pouch[App]
	Manifests   *pouch.Pouch[manifest.Manifest]
	Secrets     *pouch.Pouch[Secrets]
	Deployments *pouch.Pouch[Deployment]
	Instances   *pouch.Pouch[Instance]
	Providers   *pouch.Pouch[Providers]

	locked map[*lockHandle]Mode
}

// lockHandle is an opaque per-pouch lock token; RWMutex itself is not
// exposed outside pouch, so Guard tracks which pouches it locked by
// pointer identity of the handle returned from the vault's internal
// lock table.
type lockHandle struct {
	name string
	mu   *rwLocker
}

// Grab acquires every reserved pouch's lock in the canonical order
// {apps, manifests, secrets, deployments, instances, providers} and returns
// a Guard populated only with the reserved pouches (spec.md §4.2).
func (v *Vault) Grab(r *Reservation) *Guard {
	g := &Guard{v: v, r: r, locked: make(map[*lockHandle]Mode)}

	lock := func(handle *lockHandle, mode Mode) {
		switch mode {
		case ModeRead:
			handle.mu.RLock()
			g.locked[handle] = ModeRead
		case ModeWrite:
			handle.mu.Lock()
			g.locked[handle] = ModeWrite
		}
	}

	if r.apps != ModeNone {
		lock(v.locks.apps, r.apps)
		g.Apps = v.apps
	}
	if r.manifests != ModeNone {
		lock(v.locks.manifests, r.manifests)
		g.Manifests = v.manifests
	}
	if r.secrets != ModeNone {
		lock(v.locks.secrets, r.secrets)
		g.Secrets = v.secrets
	}
	if r.deployments != ModeNone {
		lock(v.locks.deployments, r.deployments)
		g.Deployments = v.deployments
	}
	if r.instances != ModeNone {
		lock(v.locks.instances, r.instances)
		g.Instances = v.instances
	}
	if r.providers != ModeNone {
		lock(v.locks.providers, r.providers)
		g.Providers = v.providers
	}

	return g
}

// Close releases every lock the guard holds, flushing any write-reserved
// pouch to disk first (spec.md §4.2 "On drop of any write guard, pouches
// that were written are flushed atomically").
func (g *Guard) Close() error {
	var firstErr error
	flushIfWrite := func(mode Mode, flush func() error) {
		if mode != ModeWrite {
			return
		}
		if err := flush(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	flushIfWrite(g.r.apps, g.Apps.Flush)
	flushIfWrite(g.r.manifests, g.Manifests.Flush)
	flushIfWrite(g.r.secrets, g.Secrets.Flush)
	flushIfWrite(g.r.deployments, g.Deployments.Flush)
	flushIfWrite(g.r.instances, g.Instances.Flush)
	flushIfWrite(g.r.providers, g.Providers.Flush)

	for handle, mode := range g.locked {
		switch mode {
		case ModeWrite:
			handle.mu.Unlock()
		case ModeRead:
			handle.mu.RUnlock()
		default:
			// g.locked is only ever populated by Grab's lock closure, which
			// never records ModeNone (spec.md Open Question (a): vault
			// reservations should never fail to release).
			panic(flecserr.Unreachable("guard holds a lock recorded with ModeNone"))
		}
	}
	return firstErr
}
