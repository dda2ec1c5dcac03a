package config

// New builds an AppConfig from build metadata and the loaded UserConfig,
// mirroring the teacher's split between build-time constants (Version,
// Commit, BuildDate) and the runtime UserConfig.
func New(version, commit, buildDate string, debug bool, user *UserConfig) *AppConfig {
	return &AppConfig{
		Version:    version,
		Commit:     commit,
		BuildDate:  buildDate,
		Debug:      debug,
		UserConfig: user,
	}
}
