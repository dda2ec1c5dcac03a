// Package deployment defines the Deployment driver abstraction (spec.md
// §4.6): the narrow surface the core needs from a container runtime to
// create, start, stop, and remove instances, independent of which runtime
// actually backs it. Grounded on the ContainerRuntime interface in
// jesseduffield-lazydocker's pkg/commands/runtime.go, narrowed to the
// operations the core's quests actually drive (spec.md explicitly leaves
// runtime driver internals out of scope; only this contract is core).
package deployment

import (
	"context"
	"io"

	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/id"
	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/manifest"
	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/portmap"
)

// NetworkKind mirrors the manifest's default-network configuration
// (spec.md §3, "Network" object): what topology a created network uses.
type NetworkKind string

const (
	NetworkBridge  NetworkKind = "bridge"
	NetworkMACVLAN NetworkKind = "macvlan"
	NetworkIPVLAN  NetworkKind = "ipvlan"
)

// NetworkConfig describes a network to create or attach to (spec.md §4.7).
type NetworkConfig struct {
	Name    string
	Kind    NetworkKind
	CIDR    string
	Gateway string
	Parent  string // host adapter name, for macvlan/ipvlan
}

// NetworkInfo is the subset of a runtime-reported network the core surfaces
// back to callers that inspect or enumerate networks (spec.md §4.7).
type NetworkInfo struct {
	ID     string
	Name   string
	Driver string
}

// VolumeInfo is the subset of a runtime-reported volume the core surfaces
// back to callers that inspect volumes (spec.md §4.7 "Volume").
type VolumeInfo struct {
	Name       string
	Driver     string
	Mountpoint string
	Labels     map[string]string
}

// MountPoint is a host-path-or-name to in-container-path bind, derived from
// a manifest.Volume or manifest.ConfigFile at instantiation time.
type MountPoint struct {
	Source   string
	Target   string
	ReadOnly bool
}

// CreateSpec is everything a Driver needs to instantiate one container for
// one instance, already resolved from the owning manifest and instance
// configuration (spec.md §4.3/4.6). Ports is keyed by transport so a single
// container can publish tcp, udp, and sctp mappings side by side (spec.md
// §3 "Port mappings … split by transport protocol").
type CreateSpec struct {
	InstanceID    id.InstanceID
	ContainerName string
	Image         string
	Args          []string
	Env           []manifest.EnvVar
	Labels        []manifest.Label
	Capabilities  []manifest.Capability
	Devices       []string
	Mounts        []MountPoint
	Ports         map[portmap.Protocol][]portmap.Mapping
	Networks      []string
	Hostname      string
}

// Status is the runtime-state enum the core tracks for an instance between
// polls (spec.md §4.3 "Deployment driver"), folded from whatever
// finer-grained state the underlying runtime actually reports.
type Status string

const (
	StatusNotCreated     Status = "NotCreated"
	StatusRequested      Status = "Requested"
	StatusResourcesReady Status = "ResourcesReady"
	StatusCreated        Status = "Created"
	StatusStopped        Status = "Stopped"
	StatusRunning        Status = "Running"
	StatusOrphaned       Status = "Orphaned"
	StatusUnknown        Status = "Unknown"
)

// StatusFromRuntimeState folds a container runtime's own state string into
// Status, per spec.md §4.3's mapping rule: Running/Paused/Restarting/
// Removing all collapse to Running, since the core only cares whether the
// container is up; Created/Exited/Dead/(the empty, not-yet-inspected state)
// all collapse to Created, since the core only cares whether it exists.
// Anything else is Unknown rather than guessed at.
func StatusFromRuntimeState(state string) Status {
	switch state {
	case "running", "paused", "restarting", "removing":
		return StatusRunning
	case "created", "exited", "dead", "":
		return StatusCreated
	default:
		return StatusUnknown
	}
}

// ContainerStatus is the runtime-reported container state the core surfaces
// through instance status (spec.md §4.3). State is the folded Status enum;
// the remaining fields are the finer-grained detail a caller may still want
// (e.g. to decide whether a health check is failing).
type ContainerStatus struct {
	ID       string
	State    Status
	Running  bool
	Healthy  *bool
	ExitCode *int
}

// Driver is the narrow contract a container runtime backend must satisfy.
// Spec.md leaves its implementation out of scope; Docker is the only
// backend this module ships, grounded on docker/docker's client package.
type Driver interface {
	CreateContainer(ctx context.Context, spec CreateSpec) (string, error)
	StartContainer(ctx context.Context, containerID string) error
	StopContainer(ctx context.Context, containerID string, timeout *int) error
	RemoveContainer(ctx context.Context, containerID string, force bool) error
	InspectContainer(ctx context.Context, containerID string) (ContainerStatus, error)

	// ContainerLogs streams a container's output, restricted to stdout
	// and/or stderr as requested (spec.md §4.3 "container logs").
	ContainerLogs(ctx context.Context, containerID string, stdout, stderr bool) (io.ReadCloser, error)

	// CopyIntoContainer and CopyFromContainer move a tar stream into or out
	// of a running or stopped container's filesystem (spec.md §4.3 "copy
	// into/out of a container"). CopyConfigFile, below, is the narrower,
	// single-file convenience the instance manager actually uses day to
	// day; these two back it and back instance export/import.
	CopyIntoContainer(ctx context.Context, containerID, destPath string, tarStream io.Reader) error
	CopyFromContainer(ctx context.Context, containerID, srcPath string) (io.ReadCloser, error)

	PullImage(ctx context.Context, ref string, onProgress func(status string)) error
	// PullImageWithToken pulls ref authenticating with a pre-obtained
	// registry token, the path the catalogue's private images use (spec.md
	// §4.3 "registry-token pull").
	PullImageWithToken(ctx context.Context, ref, token string, onProgress func(status string)) error
	RemoveImage(ctx context.Context, ref string, force bool) error
	HasImage(ctx context.Context, ref string) (bool, error)
	// ImageSize reports an image's size on disk in bytes (spec.md §4.3
	// "query size on disk").
	ImageSize(ctx context.Context, ref string) (int64, error)
	// ExportImage and ImportImage move an image as a tar stream, the same
	// shape `docker save`/`docker load` use (spec.md §4.3 "image
	// export-to-tar/import-from-tar").
	ExportImage(ctx context.Context, ref string, w io.Writer) error
	ImportImage(ctx context.Context, r io.Reader) error
	// CopyFromImage copies a path out of an image without starting it
	// (spec.md §4.3 "copy-path-out-of-image"), by staging a throwaway
	// container and discarding it afterward.
	CopyFromImage(ctx context.Context, ref, srcPath string) (io.ReadCloser, error)

	CreateNetwork(ctx context.Context, cfg NetworkConfig) (string, error)
	InspectNetwork(ctx context.Context, name string) (NetworkInfo, error)
	ListNetworks(ctx context.Context) ([]NetworkInfo, error)
	RemoveNetwork(ctx context.Context, name string) error
	ConnectNetwork(ctx context.Context, containerID, networkName, ip string) error
	DisconnectNetwork(ctx context.Context, containerID, networkName string) error

	CreateVolume(ctx context.Context, name string) error
	InspectVolume(ctx context.Context, name string) (VolumeInfo, error)
	RemoveVolume(ctx context.Context, name string, force bool) error
	// ExportVolume and ImportVolume move a volume's contents as a gzipped
	// tar stream. Docker's API has no native verb for this; both go through
	// a throwaway helper container the same way the original's docker_cli
	// shells out to `docker` for operations the API client doesn't cover
	// (spec.md §4.3 "volume … import/export").
	ExportVolume(ctx context.Context, name string, w io.Writer) error
	ImportVolume(ctx context.Context, name string, r io.Reader) error

	// CopyConfigFile places one manifest-declared config file's rendered
	// content at destPath inside containerID. The Docker driver shells out
	// to the docker CLI for this rather than the streaming tar API, since
	// a single-file write is awkward to express through it.
	CopyConfigFile(ctx context.Context, containerID string, destPath string, content []byte) error

	Close() error
}
