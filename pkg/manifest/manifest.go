// Package manifest implements the declarative app descriptor from spec.md
// §3: a Single manifest describing one container image, or a Multi
// manifest wrapping an opaque compose document. Grounded on
// original_source/flecs-core/src/jeweler/gem/manifest/{config_file,port,single/port}.rs
// and the generated manifest JSON shapes in
// original_source/flecs_app_manifest/src/generated/manifest_3_1_0/tests.rs.
package manifest

import (
	"fmt"

	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/id"
	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/portmap"
)

// Capability is a subset of the Linux/Docker capabilities a Single manifest
// may request.
type Capability string

const (
	CapDocker   Capability = "DOCKER"
	CapIPCLock  Capability = "IPC_LOCK"
	CapNetAdmin Capability = "NET_ADMIN"
)

// Editor describes an HTTP endpoint exposed by the container that the core
// can redirect to (spec.md §4.5 "Editor access").
type Editor struct {
	Name                 string `json:"name"`
	Port                 uint16 `json:"port"`
	SupportsReverseProxy bool   `json:"supportsReverseProxy"`
}

// Validate enforces the editor port ≠ 0 invariant.
func (e Editor) Validate() error {
	if e.Port == 0 {
		return fmt.Errorf("editor %q: port must not be zero", e.Name)
	}
	return nil
}

// Volume is either a named Docker volume or a host bind mount to an
// absolute path.
type Volume struct {
	Name       string `json:"name"`
	HostPath   string `json:"hostPath,omitempty"`
	IsBindMount bool   `json:"isBindMount"`
}

// Kind distinguishes Single from Multi manifests.
type Kind int

const (
	KindSingle Kind = iota
	KindMulti
)

func (k Kind) String() string {
	if k == KindMulti {
		return "Multi"
	}
	return "Single"
}

// Single is the image-backed manifest variant (spec.md §3).
type Single struct {
	Key                  id.AppKey
	Image                string
	Args                 []string
	Capabilities         []Capability
	ConfFiles            []ConfigFile
	Devices              []string // absolute host paths
	Editors              []Editor
	EnvDefaults          []EnvVar
	Labels               []Label
	Ports                []portmap.Mapping
	Revision             string
	Interactive          bool
	MultiInstance        bool
	Volumes              []Volume
	MinimumFlecsVersion  string
}

// EnvVar is an ordered (name, optional value) pair, as the manifest encodes
// defaults and as instances track overrides.
type EnvVar struct {
	Name  string
	Value *string
}

// Label is a pre-manifest label, either bare ("tech.flecs") or name=value.
type Label struct {
	Name  string
	Value *string
}

// Manifest is the sum type spec.md §3 describes: exactly one of Single or Multi is set.
type Manifest struct {
	Key   id.AppKey
	Kind  Kind
	Single *Single
	Multi  *Multi
}

// Multi wraps an opaque compose-style document; its internal structure is
// not interpreted by the core, only its services/volumes/networks are
// enumerated for accounting purposes (spec.md §3).
type Multi struct {
	Key      id.AppKey
	Document map[string]any
	Services []string
	Volumes  []string
	Networks []string
}

// Validate checks the app key and, for a Single manifest, the ingestion-time
// invariants from spec.md §3: non-empty image, conffile shape, editor ports.
// Port range widths are not checked here; portmap.NewRangeMapping rejects
// unequal widths when a mapping is built.
func (m *Manifest) Validate() error {
	if err := m.Key.Validate(); err != nil {
		return err
	}
	switch m.Kind {
	case KindSingle:
		if m.Single == nil {
			return fmt.Errorf("single manifest missing body")
		}
		return m.Single.Validate()
	case KindMulti:
		if m.Multi == nil {
			return fmt.Errorf("multi manifest missing body")
		}
		return nil
	default:
		return fmt.Errorf("unknown manifest kind %d", m.Kind)
	}
}

// Validate checks a Single manifest's invariants.
func (s *Single) Validate() error {
	if s.Image == "" {
		return fmt.Errorf("single manifest %s: image must not be empty", s.Key)
	}
	for _, e := range s.Editors {
		if err := e.Validate(); err != nil {
			return fmt.Errorf("single manifest %s: %w", s.Key, err)
		}
	}
	for _, c := range s.ConfFiles {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("single manifest %s: %w", s.Key, err)
		}
	}
	return nil
}
