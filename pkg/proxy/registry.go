package proxy

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/flecserr"
)

// route is one instance's reverse-proxy or editor-redirect entry.
type route struct {
	appName    string
	instanceID string
	hostPort   int
	destPort   int
	ip         string
	isEditor   bool
}

// Registry is a reference Floxy implementation that tracks routes in
// memory and renders them as a config file on reload. It grounds spec.md
// §4.4's allocation algorithm ("scan a reserved range for a port not
// listed in the running proxy's configured set") without depending on the
// actual reverse-proxy binary or its config grammar, both explicitly out
// of the core's scope.
type Registry struct {
	mu          sync.Mutex
	routes      map[string]*route // key: appName/instanceID/hostPort
	editorRange [2]int
	reloads     int
	writeConfig func(routes []route) error
}

// NewRegistry builds an empty registry. editorFrom/editorTo bound the host
// ports considered for editor redirect allocation.
func NewRegistry(editorFrom, editorTo int, writeConfig func(routes []route) error) *Registry {
	return &Registry{
		routes:      make(map[string]*route),
		editorRange: [2]int{editorFrom, editorTo},
		writeConfig: writeConfig,
	}
}

func routeKey(appName, instanceID string, hostPort int) string {
	return fmt.Sprintf("%s/%s/%d", appName, instanceID, hostPort)
}

func (r *Registry) AddInstanceReverseProxyConfig(_ context.Context, appName, instanceID, ip string, destPorts []int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	changed := false
	for _, destPort := range destPorts {
		key := routeKey(appName, instanceID, destPort)
		if existing, ok := r.routes[key]; ok && existing.ip == ip && existing.destPort == destPort {
			continue
		}
		r.routes[key] = &route{appName: appName, instanceID: instanceID, hostPort: destPort, destPort: destPort, ip: ip}
		changed = true
	}
	return changed, nil
}

func (r *Registry) DeleteReverseProxyConfig(_ context.Context, appName, instanceID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	changed := false
	for key, rt := range r.routes {
		if rt.appName == appName && rt.instanceID == instanceID {
			delete(r.routes, key)
			changed = true
		}
	}
	return changed, nil
}

func (r *Registry) DeleteServerConfig(_ context.Context, appName, instanceID string, hostPort int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := routeKey(appName, instanceID, hostPort)
	if _, ok := r.routes[key]; !ok {
		return false, nil
	}
	delete(r.routes, key)
	return true, nil
}

func (r *Registry) DeleteServerProxyConfigs(ctx context.Context, appName, instanceID string, hostPorts []int) (bool, error) {
	anyChanged := false
	var firstErr error
	for _, p := range hostPorts {
		changed, err := r.DeleteServerConfig(ctx, appName, instanceID, p)
		anyChanged = anyChanged || changed
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return anyChanged, firstErr
}

func (r *Registry) AddInstanceEditorRedirectToFreePort(_ context.Context, appName, instanceID, ip string, destPort int) (bool, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	used := make(map[int]bool, len(r.routes))
	for _, rt := range r.routes {
		used[rt.hostPort] = true
	}

	for candidate := r.editorRange[0]; candidate <= r.editorRange[1]; candidate++ {
		if used[candidate] {
			continue
		}
		key := routeKey(appName, instanceID, candidate)
		r.routes[key] = &route{appName: appName, instanceID: instanceID, hostPort: candidate, destPort: destPort, ip: ip, isEditor: true}
		return true, candidate, nil
	}
	return false, 0, flecserr.New(flecserr.KindRuntimeFailure, "no free port available in the editor redirect range")
}

func (r *Registry) ReloadConfig(_ context.Context) error {
	r.mu.Lock()
	r.reloads++
	routes := make([]route, 0, len(r.routes))
	for _, rt := range r.routes {
		routes = append(routes, *rt)
	}
	writeConfig := r.writeConfig
	r.mu.Unlock()

	sort.Slice(routes, func(i, j int) bool { return routes[i].hostPort < routes[j].hostPort })
	if writeConfig != nil {
		return writeConfig(routes)
	}
	return nil
}

// Reloads reports how many times ReloadConfig has actually run, for tests
// asserting the at-most-once reload boundary (spec.md Testable Property 5).
func (r *Registry) Reloads() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reloads
}
