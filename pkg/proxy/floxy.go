// Package proxy implements the reverse-proxy control layer (spec.md §4.4):
// declarative add/remove of per-instance routes and editor redirects,
// batched so one logical operation produces at most one reload, plus
// process control (start/stop/status) for the nginx-style engine behind a
// pid file. Grounded on lazydocker's OSCommand (pkg/commands/os.go) for
// process lifecycle and signal dispatch, adapted from "run a foreground
// shell command" into "supervise a long-lived daemon via its pid file".
package proxy

import (
	"context"
)

// Floxy is the trait-shaped contract spec.md §4.4 names: the engine-facing
// operations the core issues to keep editor and instance routes current.
// Implementations talk to the reverse-proxy binary's config file and
// signal it to reload; spec.md explicitly excludes the proxy binary and
// its config format from the core.
type Floxy interface {
	AddInstanceReverseProxyConfig(ctx context.Context, appName string, instanceID string, ip string, destPorts []int) (changed bool, err error)
	DeleteReverseProxyConfig(ctx context.Context, appName string, instanceID string) (changed bool, err error)
	DeleteServerConfig(ctx context.Context, appName string, instanceID string, hostPort int) (changed bool, err error)
	DeleteServerProxyConfigs(ctx context.Context, appName string, instanceID string, hostPorts []int) (changed bool, err error)
	AddInstanceEditorRedirectToFreePort(ctx context.Context, appName string, instanceID string, ip string, destPort int) (changed bool, allocatedHostPort int, err error)
	ReloadConfig(ctx context.Context) error
}
