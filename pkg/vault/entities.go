// Package vault implements the process-global, concurrency-controlled
// owner of the persistent object graph (spec.md §3, §4.2): apps, manifests,
// secrets, deployments, instances, and providers. Grounded on the reader
// lock around lazydocker's container/service caches (pkg/commands/docker.go
// ContainerMutex/ServiceMutex), generalized from "one mutex per in-memory
// list" into "one reader/writer lock per persistent pouch with a
// fixed-order, multi-pouch reservation" as spec.md §4.2 requires.
package vault

import (
	"time"

	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/id"
	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/manifest"
	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/portmap"
)

// DesiredStatus is the target state a caller wants an entity to reach.
type DesiredStatus string

const (
	DesiredInstalled    DesiredStatus = "Installed"
	DesiredNotInstalled DesiredStatus = "NotInstalled"
	DesiredRunning      DesiredStatus = "Running"
	DesiredStopped      DesiredStatus = "Stopped"
)

// InstanceStatus mirrors the deployment driver's reported container state
// (spec.md §4.3), already folded into the driver-level states the core
// tracks between polls.
type InstanceStatus string

const (
	StatusNotCreated    InstanceStatus = "NotCreated"
	StatusRequested     InstanceStatus = "Requested"
	StatusResourcesReady InstanceStatus = "ResourcesReady"
	StatusCreated       InstanceStatus = "Created"
	StatusStopped       InstanceStatus = "Stopped"
	StatusRunning       InstanceStatus = "Running"
	StatusOrphaned      InstanceStatus = "Orphaned"
	StatusUnknown       InstanceStatus = "Unknown"
)

// AppInstallationRecord ties an App to one deployment it has been (or is
// being) installed onto.
type AppInstallationRecord struct {
	DeploymentID id.DeploymentID `json:"deploymentId"`
	ManifestKey  id.AppKey       `json:"manifestKey"`
	Status       DesiredStatus   `json:"status"`
}

// App is the install-state record for one AppKey (spec.md §3 "App").
type App struct {
	Key          id.AppKey               `json:"key"`
	Desired      DesiredStatus           `json:"desired"`
	Installation []AppInstallationRecord `json:"installation"`
}

// DeploymentKind is the family of runtime a Deployment talks to.
type DeploymentKind string

const (
	DeploymentDocker  DeploymentKind = "Docker"
	DeploymentCompose DeploymentKind = "Compose"
)

// Deployment is the addressable handle to a container runtime endpoint
// (spec.md §3 "Deployment"). Created at startup from config, never mutated
// thereafter.
type Deployment struct {
	ID         id.DeploymentID `json:"id"`
	Kind       DeploymentKind  `json:"kind"`
	Default    bool            `json:"default"`
	SocketPath string          `json:"socketPath"`
}

// NetworkAttachment is one edge between an Instance and a Network: the
// address the instance holds on that network (spec.md §3 "Network → …
// address mapping on the edge").
type NetworkAttachment struct {
	NetworkID string `json:"networkId"`
	Address   string `json:"address"`
}

// USBBinding is one configured USB port assignment (spec.md §3 "USB device
// bindings").
type USBBinding struct {
	Port   string `json:"port"`
	Bus    int    `json:"bus"`
	Device int    `json:"device"`
}

// InstanceConfigFile is a materialized conffile for one instance, resolved
// from the manifest's ConfigFile template plus the instance's own id.
type InstanceConfigFile struct {
	manifest.ConfigFile
	HostPath string `json:"hostPath"`
}

// Dependency is one instance's resolved reliance on a feature provider
// (spec.md §4.8 "set a dependency … by feature + target provider id or by
// the literal 'Default'"). TargetIsDefault records whether the dependency
// tracks the feature's current default provider rather than a pinned one,
// so ClearDefault can find and reject against it.
type Dependency struct {
	Feature         string     `json:"feature"`
	ProviderID      id.InstanceID `json:"providerId"`
	TargetIsDefault bool       `json:"targetIsDefault"`
}

// InstanceConfig is the mutable per-instance state (spec.md §3 "Instance …
// config").
type InstanceConfig struct {
	EnvOverrides  []manifest.EnvVar                      `json:"envOverrides"`
	Ports         map[portmap.Protocol][]portmap.Mapping `json:"ports"`
	Networks      []NetworkAttachment                    `json:"networks"`
	USB           []USBBinding                            `json:"usb"`
	Labels        []manifest.Label                        `json:"labels"`
	Volumes       map[string]string                       `json:"volumes"` // logical name -> volume name
	ConfigFiles   []InstanceConfigFile                    `json:"configFiles"`
	Dependencies  []Dependency                             `json:"dependencies,omitempty"`
	FeatureConfig map[string]map[string]string            `json:"featureConfig,omitempty"`
}

// NewInstanceConfig builds an empty config with initialized maps, the
// shape every instance starts with before Create copies manifest defaults
// into it.
func NewInstanceConfig() InstanceConfig {
	return InstanceConfig{
		Ports:   make(map[portmap.Protocol][]portmap.Mapping),
		Volumes: make(map[string]string),
	}
}

// Instance is a runnable incarnation of an App on a Deployment (spec.md §3
// "Instance").
type Instance struct {
	ID           id.InstanceID    `json:"id"`
	Name         string           `json:"name"`
	AppKey       id.AppKey        `json:"appKey"`
	DeploymentID id.DeploymentID  `json:"deploymentId"`
	Desired      DesiredStatus    `json:"desired"`
	Status       InstanceStatus   `json:"status"`
	ContainerID  string           `json:"containerId,omitempty"`
	Config       InstanceConfig   `json:"config"`
}

// ProviderRecord describes one instance that currently advertises a feature
// (spec.md §4.8).
type ProviderRecord struct {
	InstanceID id.InstanceID     `json:"instanceId"`
	Config     map[string]string `json:"config,omitempty"`
}

// Providers is the single provider-pouch document (spec.md §4.8): defaults
// per feature, the provider records derived from running instances, and
// the core's own auth-provider slot.
type Providers struct {
	Defaults        map[string]id.InstanceID            `json:"defaults"`
	ByFeature       map[string]map[id.InstanceID]ProviderRecord `json:"byFeature"`
	CoreAuthProvider *id.InstanceID                      `json:"coreAuthProvider,omitempty"`
}

// NewProviders builds an empty provider document.
func NewProviders() Providers {
	return Providers{
		Defaults:  make(map[string]id.InstanceID),
		ByFeature: make(map[string]map[id.InstanceID]ProviderRecord),
	}
}

// Secrets is the persisted catalogue credential triple (spec.md §3
// "Secrets").
type Secrets struct {
	LicenseKey    string     `json:"licenseKey,omitempty"`
	SessionID     string     `json:"sessionId,omitempty"`
	Authenticated bool       `json:"authenticated"`
	IssuedAt      *time.Time `json:"issuedAt,omitempty"`
}
