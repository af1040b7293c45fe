package sdk

import (
	"fmt"
	"net/url"
	"time"
)

const (
	DefaultBaseURL = "http://localhost:8080"
)

// Config is the configuration for the Client
type Config struct {
	BaseURL       string        // BaseURL is required
	AccessToken   string        // AccessToken is sent as a bearer token when set
	ClientID      string        // ClientID identifies the caller on servers running without auth
	RetryCount    int           // RetryCount defaults to 3, negative disables retries
	RetryInterval time.Duration // RetryInterval defaults to 1s
	Timeout       time.Duration // Timeout is optional
}

func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return ErrNoServerURL
	}

	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidServerURL, c.BaseURL)
	}

	if c.AccessToken == "" && c.ClientID == "" {
		return ErrNoCredentials
	}

	return nil
}

func (c *Config) retryCount() int {
	switch {
	case c.RetryCount < 0:
		return 0
	case c.RetryCount == 0:
		return 3
	default:
		return c.RetryCount
	}
}

func (c *Config) retryInterval() time.Duration {
	if c.RetryInterval > 0 {
		return c.RetryInterval
	}
	return defaultRetryInterval
}
