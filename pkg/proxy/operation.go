package proxy

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// Operation is the scoped "FloxyOperation" from spec.md §4.4: it wraps a
// Floxy handle and a reload-required flag. Every method folds the proxy's
// changed? result into the flag; Close triggers ReloadConfig exactly when
// the flag is set, satisfying Testable Property 5 (at most one reload per
// operation, at least one iff something changed). Go has no destructor, so
// callers must defer Close explicitly (spec.md §9).
type Operation struct {
	floxy Floxy
	log   *logrus.Entry
	ctx   context.Context

	mu      sync.Mutex
	changed bool
	err     error
}

// NewOperation opens a scope around floxy.
func NewOperation(ctx context.Context, floxy Floxy, log *logrus.Entry) *Operation {
	return &Operation{floxy: floxy, log: log, ctx: ctx}
}

func (o *Operation) arm(changed bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if changed {
		o.changed = true
	}
}

// AddInstanceReverseProxyConfig installs or updates an instance's reverse
// proxy route.
func (o *Operation) AddInstanceReverseProxyConfig(appName, instanceID, ip string, destPorts []int) error {
	changed, err := o.floxy.AddInstanceReverseProxyConfig(o.ctx, appName, instanceID, ip, destPorts)
	o.arm(changed)
	return err
}

// DeleteReverseProxyConfig removes every route for an instance.
func (o *Operation) DeleteReverseProxyConfig(appName, instanceID string) error {
	changed, err := o.floxy.DeleteReverseProxyConfig(o.ctx, appName, instanceID)
	o.arm(changed)
	return err
}

// DeleteServerConfig removes one route by host port.
func (o *Operation) DeleteServerConfig(appName, instanceID string, hostPort int) error {
	changed, err := o.floxy.DeleteServerConfig(o.ctx, appName, instanceID, hostPort)
	o.arm(changed)
	return err
}

// DeleteServerProxyConfigs removes several routes; per spec.md §4.4 and §7
// "Recovery", a partial failure still arms reload for whatever did change
// before the error was returned.
func (o *Operation) DeleteServerProxyConfigs(appName, instanceID string, hostPorts []int) error {
	changed, err := o.floxy.DeleteServerProxyConfigs(o.ctx, appName, instanceID, hostPorts)
	o.arm(changed)
	return err
}

// AddInstanceEditorRedirectToFreePort allocates a host port for an editor
// redirect and installs the route.
func (o *Operation) AddInstanceEditorRedirectToFreePort(appName, instanceID, ip string, destPort int) (int, error) {
	changed, allocated, err := o.floxy.AddInstanceEditorRedirectToFreePort(o.ctx, appName, instanceID, ip, destPort)
	o.arm(changed)
	return allocated, err
}

// Close reloads the proxy configuration iff any call on this operation
// reported a change, then returns whatever error that reload produced (or
// nil). Safe to call once; subsequent calls are no-ops.
func (o *Operation) Close() error {
	o.mu.Lock()
	changed := o.changed
	o.changed = false
	o.mu.Unlock()

	if !changed {
		return nil
	}
	if err := o.floxy.ReloadConfig(o.ctx); err != nil {
		o.log.WithError(err).Error("reverse proxy reload failed")
		return err
	}
	return nil
}
