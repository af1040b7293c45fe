package ratelimit

import (
	"fmt"
	"slices"
	"time"
)

const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

type Config struct {
	Enabled        bool              `mapstructure:"enabled"`
	Store          string            `mapstructure:"store"`
	SweepInterval  time.Duration     `mapstructure:"sweep_interval"`
	TrustedProxies []string          `mapstructure:"trusted_proxies"`
	Rules          map[string]string `mapstructure:"rules"`
}

// DefaultRules are the per-class budgets used when the config names none
var DefaultRules = map[string]string{
	RuleAPI:     "300-M",
	RuleStream:  "120-M",
	RuleSegment: "1200-M",
	RuleUpload:  "600-M",
	RuleSearch:  "60-M",
}

func (c *Config) Validate() error {
	if !slices.Contains([]string{StoreMemory, StoreRedis}, c.Store) {
		return fmt.Errorf("unknown store %q", c.Store)
	}
	if _, err := c.ParseRules(); err != nil {
		return err
	}
	if _, err := NewIdentifier(c.TrustedProxies); err != nil {
		return err
	}
	return nil
}

// ParseRules returns every known rule, taking the configured rate when present
func (c *Config) ParseRules() ([]Rule, error) {
	names := make([]string, 0, len(DefaultRules))
	for name := range DefaultRules {
		names = append(names, name)
	}
	slices.Sort(names)

	for name := range c.Rules {
		if _, ok := DefaultRules[name]; !ok {
			return nil, fmt.Errorf("unknown rule %q", name)
		}
	}

	rules := make([]Rule, 0, len(names))
	for _, name := range names {
		formatted := DefaultRules[name]
		if v, ok := c.Rules[name]; ok && v != "" {
			formatted = v
		}
		rule, err := ParseRule(name, formatted)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, nil
}
