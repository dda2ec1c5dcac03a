package manifest

import (
	"encoding/json"
	"fmt"

	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/id"
	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/portmap"
)

// wireSingle mirrors the generated manifest_3_1_0 JSON shape: scalar lists
// of loosely-typed strings that get parsed into the richer Single fields.
type wireSingle struct {
	App                 string   `json:"app"`
	Version              string   `json:"version"`
	Image                string   `json:"image"`
	Args                 []string `json:"args,omitempty"`
	Capabilities         []string `json:"capabilities,omitempty"`
	ConfFiles            []string `json:"conffiles,omitempty"`
	Devices              []string `json:"devices,omitempty"`
	Editors              []Editor `json:"editors,omitempty"`
	Env                  []string `json:"env,omitempty"`
	Labels               []string `json:"labels,omitempty"`
	Ports                []string `json:"ports,omitempty"`
	Revision             string   `json:"revision,omitempty"`
	Interactive          bool     `json:"interactive,omitempty"`
	MultiInstance        bool     `json:"multiInstance,omitempty"`
	MinimumFlecsVersion  string   `json:"minimumFlecsVersion,omitempty"`
}

// ParseSingleJSON decodes a Single manifest from the generated-manifest JSON
// wire format (manifest_3_1_0). Editors default SupportsReverseProxy to true
// when the source document omits the field, matching the original's
// #[serde(default = "default_true")] behavior.
func ParseSingleJSON(data []byte) (*Single, error) {
	var raw struct {
		App                 string            `json:"app"`
		Version              string            `json:"version"`
		Image                string            `json:"image"`
		Args                 []string          `json:"args,omitempty"`
		Capabilities         []string          `json:"capabilities,omitempty"`
		ConfFiles            []string          `json:"conffiles,omitempty"`
		Devices              []string          `json:"devices,omitempty"`
		Editors              []json.RawMessage `json:"editors,omitempty"`
		Env                  []string          `json:"env,omitempty"`
		Labels               []string          `json:"labels,omitempty"`
		Ports                []string          `json:"ports,omitempty"`
		Revision             string            `json:"revision,omitempty"`
		Interactive          bool              `json:"interactive,omitempty"`
		MultiInstance        bool              `json:"multiInstance,omitempty"`
		MinimumFlecsVersion  string            `json:"minimumFlecsVersion,omitempty"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}

	s := &Single{
		Key:                 id.AppKey{Name: raw.App, Version: raw.Version},
		Image:               raw.Image,
		Args:                raw.Args,
		Devices:             raw.Devices,
		Revision:            raw.Revision,
		Interactive:         raw.Interactive,
		MultiInstance:       raw.MultiInstance,
		MinimumFlecsVersion: raw.MinimumFlecsVersion,
	}

	for _, c := range raw.Capabilities {
		s.Capabilities = append(s.Capabilities, Capability(c))
	}

	for _, raw := range raw.ConfFiles {
		cf, err := ParseConfigFile(raw)
		if err != nil {
			return nil, err
		}
		s.ConfFiles = append(s.ConfFiles, cf)
	}

	for _, raw := range raw.Editors {
		e := Editor{SupportsReverseProxy: true}
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, fmt.Errorf("decode editor: %w", err)
		}
		s.Editors = append(s.Editors, e)
	}

	for _, raw := range raw.Env {
		ev, err := ParseEnvVar(raw)
		if err != nil {
			return nil, err
		}
		s.EnvDefaults = append(s.EnvDefaults, ev)
	}

	for _, raw := range raw.Labels {
		l, err := ParseLabel(raw)
		if err != nil {
			return nil, err
		}
		s.Labels = append(s.Labels, l)
	}

	for _, raw := range raw.Ports {
		m, err := portmap.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("port %q: %w", raw, err)
		}
		s.Ports = append(s.Ports, m)
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}
