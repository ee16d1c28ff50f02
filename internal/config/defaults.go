package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultBaseURL            = "http://localhost:8000"
	DefaultAPITimeout         = 30 * time.Second
	DefaultMaxRetries         = 3
	DefaultReconnectAttempts  = 5
	DefaultReconnectBaseDelay = 1 * time.Second
	DefaultReconnectMaxDelay  = 30 * time.Second
	DefaultPingInterval       = 30 * time.Second
	DefaultPongTimeout        = 10 * time.Second
	DefaultStatusInterval     = 60 * time.Second
)

func (c *Config) applyDefaults() {
	if c.Server.BaseURL == "" {
		c.Server.BaseURL = DefaultBaseURL
	}
	if c.Server.Timeout == 0 {
		c.Server.Timeout = DefaultAPITimeout
	}
	if c.Server.MaxRetries == 0 {
		c.Server.MaxRetries = DefaultMaxRetries
	}

	if c.Realtime.MaxAttempts == 0 {
		c.Realtime.MaxAttempts = DefaultReconnectAttempts
	}
	if c.Realtime.BaseDelay == 0 {
		c.Realtime.BaseDelay = DefaultReconnectBaseDelay
	}
	if c.Realtime.MaxDelay == 0 {
		c.Realtime.MaxDelay = DefaultReconnectMaxDelay
	}
	if c.Realtime.PingInterval == 0 {
		c.Realtime.PingInterval = DefaultPingInterval
	}
	if c.Realtime.PongTimeout == 0 {
		c.Realtime.PongTimeout = DefaultPongTimeout
	}
	if c.Realtime.StatusInterval == 0 {
		c.Realtime.StatusInterval = DefaultStatusInterval
	}
}
