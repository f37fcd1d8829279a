package config

import (
	"time"
)

type PushConfig struct {
	URL               string        `yaml:"url"`
	HandshakeTimeout  time.Duration `yaml:"handshake_timeout"`
	PingInterval      time.Duration `yaml:"ping_interval"`
	PongTimeout       time.Duration `yaml:"pong_timeout"`
	ReconnectBaseWait time.Duration `yaml:"reconnect_base_wait"`
	ReconnectMaxWait  time.Duration `yaml:"reconnect_max_wait"`
	ReconnectAttempts int           `yaml:"reconnect_attempts"`
}

func loadPushConfig() *PushConfig {
	return &PushConfig{
		URL:               getEnv("PUSH_URL", "ws://localhost:8080/ws"),
		HandshakeTimeout:  getEnvAsDuration("PUSH_HANDSHAKE_TIMEOUT", 10*time.Second),
		PingInterval:      getEnvAsDuration("PUSH_PING_INTERVAL", 30*time.Second),
		PongTimeout:       getEnvAsDuration("PUSH_PONG_TIMEOUT", 60*time.Second),
		ReconnectBaseWait: getEnvAsDuration("PUSH_RECONNECT_BASE_WAIT", time.Second),
		ReconnectMaxWait:  getEnvAsDuration("PUSH_RECONNECT_MAX_WAIT", 30*time.Second),
		ReconnectAttempts: getEnvAsInt("PUSH_RECONNECT_ATTEMPTS", 8),
	}
}
