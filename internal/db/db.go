package db

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/cadencefm/cadence/internal/utils"
	"github.com/jmoiron/sqlx"
)

const (
	DriverSqlite = "sqlite"
	DriverMySQL  = "mysql"
)

// SQLite pragmas tuned for many small concurrent writers (chunk bookkeeping, access counters)
const defaultPragma = `
PRAGMA journal_mode=WAL;
PRAGMA busy_timeout=5000;
PRAGMA foreign_keys=ON;
PRAGMA temp_store=MEMORY;
PRAGMA cache_size=8000;
PRAGMA mmap_size=268435456;
`

// config holds internal configuration for DB creation
type config struct {
	path            string
	dsn             string
	pragmas         string
	maxOpenConns    int
	maxIdleConns    int
	connMaxLifetime time.Duration
}

// Option configures a database connection
type Option func(*config)

// WithPath sets the path for the SQLite database. Use ":memory:" for an in-memory database
func WithPath(path string) Option {
	return func(c *config) {
		c.path = path
	}
}

// WithDSN sets the MySQL data source name
func WithDSN(dsn string) Option {
	return func(c *config) {
		c.dsn = dsn
	}
}

// WithPragmas replaces the default SQLite pragmas
func WithPragmas(pragmas string) Option {
	return func(c *config) {
		c.pragmas = pragmas
	}
}

func WithMaxOpenConns(n int) Option {
	return func(c *config) {
		c.maxOpenConns = n
	}
}

func WithMaxIdleConns(n int) Option {
	return func(c *config) {
		c.maxIdleConns = n
	}
}

func WithConnMaxLifetime(d time.Duration) Option {
	return func(c *config) {
		c.connMaxLifetime = d
	}
}

func newConfig(opts []Option) *config {
	cfg := &config{
		path:         ":memory:",
		pragmas:      defaultPragma,
		maxIdleConns: 2,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// NewSqliteDB opens the embedded metadata database
func NewSqliteDB(opts ...Option) (*sqlx.DB, error) {
	cfg := newConfig(opts)

	dsn := ":memory:"
	if cfg.path != ":memory:" {
		if err := utils.EnsureParent(cfg.path); err != nil {
			return nil, fmt.Errorf("ensure parent directory: %w", err)
		}
		dsn = fmt.Sprintf("file:%s?_txlock=immediate&mode=rwc", cfg.path)
	} else {
		// every pooled connection to ":memory:" would see its own empty database
		cfg.maxOpenConns = 1
	}

	slog.Info("db", "driver", sqliteDriverID, "path", cfg.path)
	db, err := sqlx.Connect(sqliteDriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	applyPool(db, cfg)

	if _, err := db.Exec(cfg.pragmas); err != nil {
		db.Close()
		return nil, fmt.Errorf("set pragmas: %w", err)
	}

	return db, nil
}

// Open connects to the database selected by cfg
func Open(cfg Config) (*sqlx.DB, error) {
	switch cfg.Driver {
	case DriverMySQL:
		return NewMySQLDB(WithDSN(cfg.DSN), WithMaxOpenConns(cfg.MaxOpenConns))
	default:
		return NewSqliteDB(WithPath(cfg.Path), WithMaxOpenConns(cfg.MaxOpenConns))
	}
}

// IsMySQL reports whether db talks to MySQL; schema statements differ per dialect
func IsMySQL(db *sqlx.DB) bool {
	return db.DriverName() == DriverMySQL
}

func applyPool(db *sqlx.DB, cfg *config) {
	if cfg.maxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.maxOpenConns)
	}
	if cfg.maxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.maxIdleConns)
	}
	if cfg.connMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.connMaxLifetime)
	}
}
