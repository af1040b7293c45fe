package tier

import (
	"fmt"
	"time"
)

const (
	Day = 24 * time.Hour

	DefaultInterval            = Day
	DefaultHotAge              = 7 * Day
	DefaultWarmAge             = 30 * Day
	DefaultAccessRateThreshold = 5.0
	DefaultConcurrency         = 4
)

type Config struct {
	Interval            time.Duration `mapstructure:"interval"`
	RunOnStart          bool          `mapstructure:"run_on_start"`
	HotAge              time.Duration `mapstructure:"hot_age"`
	WarmAge             time.Duration `mapstructure:"warm_age"`
	AccessRateThreshold float64       `mapstructure:"access_rate_threshold"`
	Concurrency         int           `mapstructure:"concurrency"`
}

func (c *Config) Validate() error {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.HotAge <= 0 {
		c.HotAge = DefaultHotAge
	}
	if c.WarmAge <= 0 {
		c.WarmAge = DefaultWarmAge
	}
	if c.WarmAge < c.HotAge {
		return fmt.Errorf("tier `warm_age` must not be shorter than `hot_age`")
	}
	if c.AccessRateThreshold < 0 {
		return fmt.Errorf("tier `access_rate_threshold` must not be negative")
	}
	if c.AccessRateThreshold == 0 {
		c.AccessRateThreshold = DefaultAccessRateThreshold
	}
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	return nil
}

func (c *Config) Thresholds() Thresholds {
	return Thresholds{
		HotAge:     c.HotAge,
		WarmAge:    c.WarmAge,
		AccessRate: c.AccessRateThreshold,
	}
}
