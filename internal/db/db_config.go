package db

import (
	"fmt"
	"path/filepath"
)

type Config struct {
	Driver       string `mapstructure:"driver"`
	Path         string `mapstructure:"path"`
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

func (c *Config) Validate() error {
	switch c.Driver {
	case "", DriverSqlite:
		if c.Path == "" {
			return fmt.Errorf("db path required")
		}
		if c.Path != ":memory:" && !filepath.IsAbs(c.Path) {
			return fmt.Errorf("db path must be absolute, got %q", c.Path)
		}
	case DriverMySQL:
		if c.DSN == "" {
			return fmt.Errorf("db dsn required for mysql")
		}
	default:
		return fmt.Errorf("unknown db driver %q", c.Driver)
	}
	if c.MaxOpenConns < 0 {
		return fmt.Errorf("max_open_conns must be >= 0")
	}
	return nil
}
