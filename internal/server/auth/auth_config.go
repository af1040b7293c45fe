package auth

import (
	"fmt"
	"time"
)

const DefaultStreamTokenValidity = 24 * time.Hour

type Config struct {
	Enabled             bool          `mapstructure:"enabled"`
	TokenIssuer         string        `mapstructure:"token_issuer"`
	AccessTokenSecret   string        `mapstructure:"access_token_secret"`
	AccessTokenExpiry   time.Duration `mapstructure:"access_token_expiry"`
	StreamTokenSecret   string        `mapstructure:"stream_token_secret"`
	StreamTokenValidity time.Duration `mapstructure:"stream_token_validity"`
}

func (c *Config) Validate() error {
	// stream tokens are always checked, the secret is needed even with bearer auth off
	if c.StreamTokenSecret == "" {
		return fmt.Errorf("auth `stream_token_secret` is required")
	}
	if len(c.StreamTokenSecret) < 16 {
		return fmt.Errorf("auth `stream_token_secret` must be at least 16 characters")
	}
	if c.StreamTokenValidity <= 0 {
		return fmt.Errorf("auth `stream_token_validity` must be positive")
	}

	if c.Enabled {
		if c.TokenIssuer == "" {
			return fmt.Errorf("auth `token_issuer` is required when auth is enabled")
		}
		if c.AccessTokenSecret == "" {
			return fmt.Errorf("auth `access_token_secret` is required when auth is enabled")
		}
		if c.AccessTokenSecret == c.StreamTokenSecret {
			return fmt.Errorf("auth `access_token_secret` and `stream_token_secret` must differ")
		}
	}
	return nil
}
