package instance

import (
	"context"

	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/flecserr"
	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/id"
	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/manifest"
	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/proxy"
	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/vault"
)

// EditorRedirect resolves a manifest-declared editor port against a running
// instance and allocates a free host port that redirects to it (spec.md
// §4.5 "Editor access"). It returns the allocated host port to redirect the
// caller to.
//
// It fails with NotFound if port does not name a declared editor, with
// UnsupportedForKind if the editor already supports the reverse proxy
// directly (it needs no redirect), and with MalformedRequest if the
// instance is not running or has no network attachment to redirect into.
func (m *Manager) EditorRedirect(ctx context.Context, instanceID id.InstanceID, port uint16) (int, error) {
	g := m.v.Grab(vault.NewReservation().
		WithInstances(vault.ModeRead).
		WithManifests(vault.ModeRead))
	defer func() {
		if err := g.Close(); err != nil {
			m.log.WithError(err).Error("failed to release instance pouch after editor lookup")
		}
	}()

	inst, ok := g.Instances.Get(instanceID.String())
	if !ok {
		return 0, flecserr.Newf(flecserr.KindNotFound, "no instance %s", instanceID)
	}

	man, ok := g.Manifests.Get(inst.AppKey.String())
	if !ok || man.Kind != manifest.KindSingle || man.Single == nil {
		return 0, flecserr.Newf(flecserr.KindNotFound, "no editor %d declared for instance %s", port, instanceID)
	}

	var editor *manifest.Editor
	for i := range man.Single.Editors {
		if man.Single.Editors[i].Port == port {
			editor = &man.Single.Editors[i]
			break
		}
	}
	if editor == nil {
		return 0, flecserr.Newf(flecserr.KindNotFound, "no editor %d declared for instance %s", port, instanceID)
	}
	if editor.SupportsReverseProxy {
		return 0, flecserr.Newf(flecserr.KindUnsupportedForKind, "editor %q serves the reverse proxy directly and needs no redirect", editor.Name)
	}

	if inst.Status != vault.StatusRunning || len(inst.Config.Networks) == 0 {
		return 0, flecserr.Newf(flecserr.KindMalformedRequest, "instance %s is not running or has no network attachment", instanceID)
	}

	if m.floxy == nil {
		return 0, flecserr.New(flecserr.KindConflict, "no reverse proxy configured")
	}

	op := proxy.NewOperation(ctx, m.floxy, m.log)
	defer func() {
		if err := op.Close(); err != nil {
			m.log.WithError(err).Warn("failed to reload proxy after editor redirect allocation")
		}
	}()

	allocated, err := op.AddInstanceEditorRedirectToFreePort(inst.AppKey.Name, instanceID.String(), inst.Config.Networks[0].Address, int(port))
	if err != nil {
		return 0, flecserr.Because(flecserr.KindRuntimeFailure, "allocate editor redirect port", err)
	}
	return allocated, nil
}
