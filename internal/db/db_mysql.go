package db

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
)

// NewMySQLDB connects to a MySQL (or TiDB) server. The DSN is forced to parse times and use UTC.
func NewMySQLDB(opts ...Option) (*sqlx.DB, error) {
	cfg := newConfig(opts)
	if cfg.dsn == "" {
		return nil, errors.New("mysql dsn required")
	}

	myCfg, err := mysql.ParseDSN(cfg.dsn)
	if err != nil {
		return nil, fmt.Errorf("parse mysql dsn: %w", err)
	}
	myCfg.ParseTime = true
	myCfg.Loc = time.UTC

	slog.Info("db", "driver", DriverMySQL, "addr", myCfg.Addr, "database", myCfg.DBName)
	db, err := sqlx.Connect(DriverMySQL, myCfg.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if cfg.connMaxLifetime == 0 {
		cfg.connMaxLifetime = 3 * time.Minute
	}
	applyPool(db, cfg)

	return db, nil
}
