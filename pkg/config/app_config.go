// Package config handles flecsd's process-wide configuration: build
// metadata, on-disk base paths, and the per-subsystem overrides consumed
// from the environment (spec.md §6).
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// AppConfig is the root configuration object, analogous to the teacher's
// config.AppConfig: build metadata plus the resolved, merged UserConfig.
type AppConfig struct {
	Version   string
	Commit    string
	BuildDate string
	Debug     bool

	UserConfig *UserConfig
}

// UserConfig holds every path and tunable the core consumes, bound from
// environment variables by viper the way Scoutflo-kubernetes-mcp-server and
// zicongmei-gke-mcp bind theirs.
type UserConfig struct {
	// BasePath is the root of the on-disk layout (spec.md §6).
	BasePath string `mapstructure:"base_path"`

	// FlecsdSocketPath is where the HTTP adapter listens.
	FlecsdSocketPath string `mapstructure:"flecsd_socket_path"`

	// TracingFilter is a tracing/log filter expression, e.g. "info,flecs=debug".
	TracingFilter string `mapstructure:"tracing_filter"`

	// ConfigFilePath optionally points at a YAML config file merged under UserConfig.
	ConfigFilePath string `mapstructure:"config_file_path"`

	Export  ExportImportConfig  `mapstructure:"export"`
	Import  ExportImportConfig `mapstructure:"import"`
	Floxy   FloxyConfig         `mapstructure:",squash"`
	Console ConsoleConfig       `mapstructure:",squash"`
	Pouches PouchPathsConfig    `mapstructure:",squash"`
	Network DefaultNetworkConfig `mapstructure:",squash"`
}

// ExportImportConfig overrides the base path and timeout used by export/import quests.
type ExportImportConfig struct {
	BasePath string        `mapstructure:"base_path"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// FloxyConfig overrides the reverse proxy's base and config file paths.
type FloxyConfig struct {
	BasePath   string `mapstructure:"floxy_base_path"`
	ConfigPath string `mapstructure:"floxy_config_path"`
}

// ConsoleConfig carries the catalogue/console base URI.
type ConsoleConfig struct {
	URI string `mapstructure:"console_uri"`
}

// PouchPathsConfig overrides each pouch's on-disk base path.
type PouchPathsConfig struct {
	InstanceBasePath   string `mapstructure:"instance_base_path"`
	AppBasePath        string `mapstructure:"app_base_path"`
	DeploymentBasePath string `mapstructure:"deployment_base_path"`
	ManifestBasePath   string `mapstructure:"manifest_base_path"`
	SecretBasePath     string `mapstructure:"secret_base_path"`
}

// DefaultNetworkConfig describes the default network created at startup.
type DefaultNetworkConfig struct {
	Name    string `mapstructure:"default_network_name"`
	CIDR    string `mapstructure:"default_network_cidr"`
	Gateway string `mapstructure:"default_network_gateway"`
	Parent  string `mapstructure:"default_network_parent"`
	Kind    string `mapstructure:"default_network_kind"`
	Options map[string]string `mapstructure:"default_network_options"`
}

const envPrefix = "FLECS"

// Load reads the environment (prefixed FLECS_) into a UserConfig, applying
// conventional on-disk defaults for anything unset, the same layering the
// teacher applies between its built-in defaults and a user's config.yml.
func Load() (*UserConfig, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	applyDefaults(v)
	bindNestedEnv(v)

	if path := v.GetString("config_file_path"); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	var cfg UserConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

func applyDefaults(v *viper.Viper) {
	v.SetDefault("base_path", "/var/lib/flecs")
	v.SetDefault("flecsd_socket_path", "/run/flecs/flecsd.sock")
	v.SetDefault("tracing_filter", "info")
	v.SetDefault("instance_base_path", "instances")
	v.SetDefault("app_base_path", "apps")
	v.SetDefault("deployment_base_path", "deployments")
	v.SetDefault("manifest_base_path", "manifests")
	v.SetDefault("secret_base_path", "device")
	v.SetDefault("default_network_name", "flecs")
	v.SetDefault("default_network_cidr", "172.21.0.0/16")
	v.SetDefault("default_network_gateway", "172.21.0.1")
	v.SetDefault("default_network_kind", "bridge")
	v.SetDefault("floxy_base_path", "/var/lib/flecs/floxy")
	v.SetDefault("floxy_config_path", "/etc/nginx/nginx.conf")
	v.SetDefault("console_uri", "https://console.flecs.tech")
}

// bindNestedEnv binds environment variables explicitly for viper keys that
// live under squashed/namespaced structs, since AutomaticEnv alone does not
// reliably resolve nested mapstructure keys.
func bindNestedEnv(v *viper.Viper) {
	keys := []string{
		"export.base_path", "export.timeout",
		"import.base_path", "import.timeout",
		"base_path", "config_file_path", "floxy_base_path", "floxy_config_path", "console_uri",
		"instance_base_path", "app_base_path", "deployment_base_path",
		"manifest_base_path", "secret_base_path",
		"default_network_name", "default_network_cidr",
		"default_network_gateway", "default_network_parent",
		"default_network_kind",
	}
	for _, k := range keys {
		_ = v.BindEnv(k)
	}
}
