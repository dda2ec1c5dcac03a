// Package sorcerer implements the service layer from spec.md §2: typed
// façades grouping operations by domain, each of which schedules its work
// on the quest engine and returns the caller a quest id to poll rather than
// blocking the request thread on deployment-driver I/O. Grounded on
// lazydocker's Gui command dispatch (pkg/gui/*), which exposes one
// thin per-domain handler per user action that logs, calls into
// pkg/commands, and reports the result — generalized from "update a TUI
// panel" into "return a quest handle".
package sorcerer

import (
	"context"
	"io"

	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/appmgr"
	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/flecserr"
	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/id"
	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/instance"
	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/manifest"
	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/provider"
	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/quest"
	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/vault"
)

// Instances is the instance-lifecycle façade: every mutating call schedules
// a quest and returns its id immediately (spec.md §6 "202 with a job id").
type Instances struct {
	master *quest.Master
	mgr    *instance.Manager
}

// NewInstances builds an Instances façade.
func NewInstances(master *quest.Master, mgr *instance.Manager) *Instances {
	return &Instances{master: master, mgr: mgr}
}

func exclusiveInstanceKey(instanceID id.InstanceID) string {
	return "instance:" + instanceID.String()
}

// Create schedules instance creation and returns the new instance's
// eventual id via the quest's result.
func (s *Instances) Create(ctx context.Context, appKey id.AppKey, name string, deploymentID id.DeploymentID) (id.QuestID, error) {
	questID, _, err := quest.Schedule(s.master, "create instance "+name, "", func(q *quest.Quest) (id.InstanceID, error) {
		return s.mgr.Create(ctx, appKey, name, deploymentID)
	})
	return questID, err
}

// Start schedules starting an instance, exclusive per instance id so two
// concurrent starts of the same instance cannot race.
func (s *Instances) Start(ctx context.Context, instanceID id.InstanceID) (id.QuestID, error) {
	questID, _, err := quest.Schedule(s.master, "start instance "+instanceID.String(), exclusiveInstanceKey(instanceID), func(q *quest.Quest) (struct{}, error) {
		return struct{}{}, s.mgr.Start(ctx, instanceID)
	})
	return questID, err
}

// Stop schedules stopping an instance, exclusive per instance id.
func (s *Instances) Stop(ctx context.Context, instanceID id.InstanceID) (id.QuestID, error) {
	questID, _, err := quest.Schedule(s.master, "stop instance "+instanceID.String(), exclusiveInstanceKey(instanceID), func(q *quest.Quest) (struct{}, error) {
		return struct{}{}, s.mgr.Stop(ctx, instanceID)
	})
	return questID, err
}

// Delete schedules deleting an instance, exclusive per instance id.
func (s *Instances) Delete(ctx context.Context, instanceID id.InstanceID) (id.QuestID, error) {
	questID, _, err := quest.Schedule(s.master, "delete instance "+instanceID.String(), exclusiveInstanceKey(instanceID), func(q *quest.Quest) (struct{}, error) {
		return struct{}{}, s.mgr.Delete(ctx, instanceID)
	})
	return questID, err
}

// SetEnv schedules replacing an instance's environment override set.
func (s *Instances) SetEnv(ctx context.Context, instanceID id.InstanceID, vars []manifest.EnvVar) (id.QuestID, error) {
	questID, _, err := quest.Schedule(s.master, "set env for instance "+instanceID.String(), exclusiveInstanceKey(instanceID), func(q *quest.Quest) (struct{}, error) {
		return struct{}{}, s.mgr.SetEnv(ctx, instanceID, vars)
	})
	return questID, err
}

// List returns every instance, optionally filtered by app name and/or
// version (spec.md §6 "list, filter by app name/version").
func (s *Instances) List(ctx context.Context, appName, appVersion string) ([]vault.Instance, error) {
	return s.mgr.List(ctx, appName, appVersion)
}

// Get returns one instance's detail record.
func (s *Instances) Get(ctx context.Context, instanceID id.InstanceID) (vault.Instance, error) {
	return s.mgr.Get(ctx, instanceID)
}

// EditorRedirect is read-mostly (it only allocates a proxy route) and runs
// synchronously rather than through a quest, since its caller needs the
// allocated port back in the same response to issue an HTTP redirect
// (spec.md §4.5 "Editor access").
func (s *Instances) EditorRedirect(ctx context.Context, instanceID id.InstanceID, port uint16) (int, error) {
	return s.mgr.EditorRedirect(ctx, instanceID, port)
}

// GetEnvVar looks up a single environment override by name, synchronously,
// like EditorRedirect (spec.md §4.5 "environment").
func (s *Instances) GetEnvVar(ctx context.Context, instanceID id.InstanceID, name string) (manifest.EnvVar, error) {
	return s.mgr.GetEnvVar(ctx, instanceID, name)
}

// Export streams instanceID's exportable state to w synchronously, since
// the caller holds the response body open for the archive itself rather
// than polling a quest (spec.md §8 Testable Property 9).
func (s *Instances) Export(ctx context.Context, instanceID id.InstanceID, w io.Writer) error {
	return s.mgr.Export(ctx, instanceID, w)
}

// Import reads an export archive from r and recreates its instance under a
// fresh id, synchronously, returning the new id directly to the caller.
func (s *Instances) Import(ctx context.Context, r io.Reader, deploymentID id.DeploymentID) (id.InstanceID, error) {
	return s.mgr.Import(ctx, r, deploymentID)
}

// Apps is the app-lifecycle façade.
type Apps struct {
	master *quest.Master
	mgr    *appmgr.Manager
}

// NewApps builds an Apps façade.
func NewApps(master *quest.Master, mgr *appmgr.Manager) *Apps {
	return &Apps{master: master, mgr: mgr}
}

func exclusiveAppKey(appKey id.AppKey) string {
	return "app:" + appKey.String()
}

// Install schedules installing an app across the named deployments.
func (s *Apps) Install(ctx context.Context, appKey id.AppKey, deploymentIDs []id.DeploymentID) (id.QuestID, error) {
	questID, _, err := quest.Schedule(s.master, "install app "+appKey.String(), exclusiveAppKey(appKey), func(q *quest.Quest) (struct{}, error) {
		return struct{}{}, s.mgr.Install(ctx, appKey, deploymentIDs)
	})
	return questID, err
}

// Uninstall schedules uninstalling an app.
func (s *Apps) Uninstall(ctx context.Context, appKey id.AppKey) (id.QuestID, error) {
	questID, _, err := quest.Schedule(s.master, "uninstall app "+appKey.String(), exclusiveAppKey(appKey), func(q *quest.Quest) (struct{}, error) {
		return struct{}{}, s.mgr.Uninstall(ctx, appKey)
	})
	return questID, err
}

// Deployments is the deployment-query façade: read-only lookups against the
// vault's deployment pouch, grouped here since every other sorcerer needs
// them but none of them own the pouch.
type Deployments struct {
	v *vault.Vault
}

// NewDeployments builds a Deployments façade.
func NewDeployments(v *vault.Vault) *Deployments {
	return &Deployments{v: v}
}

// List returns every registered deployment.
func (d *Deployments) List(ctx context.Context) ([]vault.Deployment, error) {
	g := d.v.Grab(vault.NewReservation().WithDeployments(vault.ModeRead))
	defer func() { _ = g.Close() }()
	all := g.Deployments.All()
	out := make([]vault.Deployment, 0, len(all))
	for _, dep := range all {
		out = append(out, dep)
	}
	return out, nil
}

// Get returns one deployment by id.
func (d *Deployments) Get(ctx context.Context, deploymentID id.DeploymentID) (vault.Deployment, error) {
	g := d.v.Grab(vault.NewReservation().WithDeployments(vault.ModeRead))
	defer func() { _ = g.Close() }()
	dep, ok := g.Deployments.Get(string(deploymentID))
	if !ok {
		return vault.Deployment{}, flecserr.Newf(flecserr.KindNotFound, "no deployment %q", deploymentID)
	}
	return dep, nil
}

// Providers is the provider/dependency façade; its operations are fast
// pouch mutations so, like EditorRedirect, they run synchronously rather
// than through a quest.
type Providers struct {
	mgr *provider.Manager
}

// NewProviders builds a Providers façade.
func NewProviders(mgr *provider.Manager) *Providers {
	return &Providers{mgr: mgr}
}

func (p *Providers) List(ctx context.Context, feature string) (map[id.InstanceID]vault.ProviderRecord, error) {
	return p.mgr.ListProviders(ctx, feature)
}

func (p *Providers) SetDefault(ctx context.Context, feature string, instanceID id.InstanceID) error {
	return p.mgr.SetDefault(ctx, feature, instanceID)
}

func (p *Providers) ClearDefault(ctx context.Context, feature string) error {
	return p.mgr.ClearDefault(ctx, feature)
}

func (p *Providers) SetDependency(ctx context.Context, instanceID id.InstanceID, feature, target string) error {
	return p.mgr.SetDependency(ctx, instanceID, feature, target)
}

func (p *Providers) ClearDependency(ctx context.Context, instanceID id.InstanceID, feature string) error {
	return p.mgr.ClearDependency(ctx, instanceID, feature)
}

// Licensing is the catalogue-auth façade: it surfaces the stored session
// from the vault's secrets pouch, or the AuthenticationMissing sentinel
// (spec.md §7) when no session has ever been stored.
type Licensing struct {
	v *vault.Vault
}

// NewLicensing builds a Licensing façade.
func NewLicensing(v *vault.Vault) *Licensing {
	return &Licensing{v: v}
}

// Session returns the stored catalogue session, or an AuthenticationMissing
// error with the exact sentinel message spec.md §7 names.
func (l *Licensing) Session(ctx context.Context) (vault.Secrets, error) {
	g := l.v.Grab(vault.NewReservation().WithSecrets(vault.ModeRead))
	defer func() { _ = g.Close() }()
	secrets, _ := g.Secrets.Get(secretsKey)
	if !secrets.Authenticated {
		return vault.Secrets{}, flecserr.New(flecserr.KindAuthenticationMissing, "No authentication available")
	}
	return secrets, nil
}

// SetSession stores a freshly obtained catalogue session.
func (l *Licensing) SetSession(ctx context.Context, secrets vault.Secrets) error {
	g := l.v.Grab(vault.NewReservation().WithSecrets(vault.ModeWrite))
	defer func() { _ = g.Close() }()
	g.Secrets.Put(secretsKey, secrets)
	return nil
}

// ClearSession drops the stored catalogue session, e.g. on logout.
func (l *Licensing) ClearSession(ctx context.Context) error {
	g := l.v.Grab(vault.NewReservation().WithSecrets(vault.ModeWrite))
	defer func() { _ = g.Close() }()
	g.Secrets.Delete(secretsKey)
	return nil
}

// secretsKey is the single-entry key the secrets pouch is stored under;
// there is exactly one Secrets document per vault (spec.md §3 "Secrets").
const secretsKey = "secrets"
