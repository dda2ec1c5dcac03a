package manifest

import (
	"fmt"
	"path"
	"strings"
)

// ConfigFile is a single conffile entry: a host-relative filename mapped to
// an absolute path inside the container, with read-only and init-copy
// flags. Grounded on
// original_source/flecs-core/src/jeweler/gem/manifest/config_file.rs, with
// the string grammar widened to match the generated manifest fixtures in
// flecs_app_manifest (manifest_3_1_0/tests.rs), which combine properties
// with commas within one colon-segment, e.g. "default.conf:/etc/app/default.conf:rw,init".
type ConfigFile struct {
	HostFileName      string
	ContainerFilePath string
	ReadOnly          bool
	Init              bool
}

// ParseConfigFile parses the "host:containerpath[:prop[,prop...]]" grammar.
// Recognized property tokens are "ro", "rw", "init", "no_init"; unknown
// tokens are accepted but ignored, mirroring the original's
// warn-and-discard handling of unrecognized properties.
func ParseConfigFile(s string) (ConfigFile, error) {
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return ConfigFile{}, fmt.Errorf("conffile %q: expected \"host:containerpath[:properties]\"", s)
	}

	host := parts[0]
	containerPath := parts[1]
	cf := ConfigFile{HostFileName: host, ContainerFilePath: containerPath, ReadOnly: false, Init: false}

	if len(parts) == 3 {
		for _, token := range strings.Split(parts[2], ",") {
			switch strings.TrimSpace(token) {
			case "ro":
				cf.ReadOnly = true
			case "rw":
				cf.ReadOnly = false
			case "init":
				cf.Init = true
			case "no_init":
				cf.Init = false
			case "":
				// tolerate a trailing comma
			default:
				// unknown property: accepted but ignored, as upstream does
			}
		}
	}

	if err := cf.Validate(); err != nil {
		return ConfigFile{}, err
	}
	return cf, nil
}

// Validate enforces the original's two structural checks: the host filename
// carries no path separator (it is resolved relative to the instance's
// config directory) and the container path is absolute.
func (c ConfigFile) Validate() error {
	if c.HostFileName == "" {
		return fmt.Errorf("conffile: host file name must not be empty")
	}
	if strings.ContainsAny(c.HostFileName, "/\\") {
		return fmt.Errorf("conffile %q: host file name must not contain a path separator", c.HostFileName)
	}
	if !path.IsAbs(c.ContainerFilePath) {
		return fmt.Errorf("conffile %q: container path %q must be absolute", c.HostFileName, c.ContainerFilePath)
	}
	return nil
}

// String renders the config file back to its wire grammar.
func (c ConfigFile) String() string {
	var props []string
	if c.ReadOnly {
		props = append(props, "ro")
	} else {
		props = append(props, "rw")
	}
	if c.Init {
		props = append(props, "init")
	} else {
		props = append(props, "no_init")
	}
	return fmt.Sprintf("%s:%s:%s", c.HostFileName, c.ContainerFilePath, strings.Join(props, ","))
}
