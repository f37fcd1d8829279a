package config

type SessionConfig struct {
	// Backend selects the snapshot store: "file" keeps the snapshot on
	// the local device, "redis" shares it across devices.
	Backend    string `yaml:"backend"`
	FilePath   string `yaml:"file_path"`
	StorageKey string `yaml:"storage_key"`
}

func loadSessionConfig() *SessionConfig {
	return &SessionConfig{
		Backend:    getEnv("SESSION_BACKEND", "file"),
		FilePath:   getEnv("SESSION_FILE_PATH", ".ridesync/session.json"),
		StorageKey: getEnv("SESSION_STORAGE_KEY", "ridesync:session"),
	}
}
