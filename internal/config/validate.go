package config

import (
	"fmt"
	"net/url"
)

// Validate checks the configuration for inconsistencies. Call after
// defaults are applied.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Server.BaseURL)
	if err != nil {
		return fmt.Errorf("server.base_url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("server.base_url: scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("server.base_url: missing host")
	}

	if c.Auth.Token == "" && c.Auth.Email == "" {
		return fmt.Errorf("auth: either token or email/password is required")
	}
	if c.Auth.Token == "" && c.Auth.Password == "" {
		return fmt.Errorf("auth: password is required when logging in with email")
	}

	if c.Realtime.MaxAttempts < 0 {
		return fmt.Errorf("realtime.max_attempts: must not be negative")
	}
	if c.Realtime.BaseDelay > c.Realtime.MaxDelay {
		return fmt.Errorf("realtime.base_delay: must not exceed realtime.max_delay")
	}
	if c.Realtime.PongTimeout >= c.Realtime.PingInterval {
		return fmt.Errorf("realtime.pong_timeout: must be shorter than realtime.ping_interval")
	}

	return nil
}
