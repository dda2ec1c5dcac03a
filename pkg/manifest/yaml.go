package manifest

import (
	"fmt"

	"github.com/jesseduffield/yaml"

	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/id"
)

// ParseMultiYAML decodes a Multi manifest from a docker-compose-style YAML
// document. The document itself is kept opaque (spec.md §3: "its internal
// structure is not interpreted by the core"); only the top-level
// services/volumes/networks keys are enumerated for accounting. Grounded on
// lazydocker's own use of the jesseduffield/yaml fork to read docker-compose
// files (pkg/config/user_config.go), reused here for the core's opaque
// compose documents instead of lazydocker's own config.
func ParseMultiYAML(appKey id.AppKey, data []byte) (*Multi, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode compose document for %s: %w", appKey, err)
	}

	m := &Multi{Key: appKey, Document: doc}
	m.Services = enumerateKeys(doc, "services")
	m.Volumes = enumerateKeys(doc, "volumes")
	m.Networks = enumerateKeys(doc, "networks")
	return m, nil
}

// enumerateKeys lists the keys of doc[section] when it decodes to a
// mapping. Nested maps come back as map[interface{}]interface{} under this
// yaml.v2-derived decoder (only the explicitly-typed top-level target
// unmarshals as map[string]any), so both shapes are handled.
func enumerateKeys(doc map[string]any, section string) []string {
	raw, ok := doc[section]
	if !ok {
		return nil
	}
	switch mapping := raw.(type) {
	case map[string]any:
		keys := make([]string, 0, len(mapping))
		for k := range mapping {
			keys = append(keys, k)
		}
		return keys
	case map[interface{}]interface{}:
		keys := make([]string, 0, len(mapping))
		for k := range mapping {
			if s, ok := k.(string); ok {
				keys = append(keys, s)
			}
		}
		return keys
	default:
		return nil
	}
}
