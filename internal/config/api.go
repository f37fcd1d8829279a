package config

import (
	"time"
)

type APIConfig struct {
	BaseURL        string        `yaml:"base_url"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	UserAgent      string        `yaml:"user_agent"`
}

func loadAPIConfig() *APIConfig {
	return &APIConfig{
		BaseURL:        getEnv("API_BASE_URL", "http://localhost:8080/api/v1"),
		RequestTimeout: getEnvAsDuration("API_REQUEST_TIMEOUT", 15*time.Second),
		UserAgent:      getEnv("API_USER_AGENT", "ridesync-passenger/1.0"),
	}
}
