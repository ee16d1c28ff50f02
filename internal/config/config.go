package config

import "time"

// Config is the root configuration for the dashboard agent.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Auth     AuthConfig     `yaml:"auth"`
	Realtime RealtimeConfig `yaml:"realtime"`
}

// ServerConfig holds monitoring backend settings.
type ServerConfig struct {
	BaseURL    string        `yaml:"base_url"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

// AuthConfig holds the operator credentials. Token takes precedence; if
// empty, the agent logs in with email/password to obtain one.
type AuthConfig struct {
	Token    string `yaml:"token"`
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
}

// RealtimeConfig holds realtime channel settings. Disabled turns the
// channel off entirely: the dashboard then runs on polling alone.
type RealtimeConfig struct {
	Disabled       bool          `yaml:"disabled"`
	MaxAttempts    int           `yaml:"max_attempts"`
	BaseDelay      time.Duration `yaml:"base_delay"`
	MaxDelay       time.Duration `yaml:"max_delay"`
	PingInterval   time.Duration `yaml:"ping_interval"`
	PongTimeout    time.Duration `yaml:"pong_timeout"`
	StatusInterval time.Duration `yaml:"status_interval"`
}
