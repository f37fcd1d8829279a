package config

import (
	"time"
)

type SyncConfig struct {
	// PollInterval bounds staleness while on the HTTP fallback without
	// overwhelming the server.
	PollInterval time.Duration `yaml:"poll_interval"`

	// PushOpenTimeout is how long a push subscription may stay in the
	// connecting state before polling starts as a safety net.
	PushOpenTimeout time.Duration `yaml:"push_open_timeout"`
}

func loadSyncConfig() *SyncConfig {
	return &SyncConfig{
		PollInterval:    getEnvAsDuration("SYNC_POLL_INTERVAL", 5*time.Second),
		PushOpenTimeout: getEnvAsDuration("SYNC_PUSH_OPEN_TIMEOUT", 10*time.Second),
	}
}
