// Package database is the relay store: premium plans, stored sessions, user
// settings, free passes and counters. SQLite is the zero-config default and
// PostgreSQL serves shared deployments.
package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jholhewres/relaybot/pkg/relaybot/database/backends"
)

// BackendType names a store backend in the config.
type BackendType string

const (
	BackendSQLite     BackendType = "sqlite"
	BackendPostgreSQL BackendType = "postgresql"
)

type (
	SQLiteConfig     = backends.SQLiteConfig
	PostgreSQLConfig = backends.PostgreSQLConfig
)

// HubConfig is the database section of relaybot.yaml. Only the section
// matching Backend is used.
type HubConfig struct {
	Backend    BackendType      `yaml:"backend"`
	SQLite     SQLiteConfig     `yaml:"sqlite"`
	PostgreSQL PostgreSQLConfig `yaml:"postgresql"`
}

// DefaultHubConfig stores everything in ./data/relaybot.db.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		Backend: BackendSQLite,
		SQLite: SQLiteConfig{
			Path:        "./data/relaybot.db",
			JournalMode: "WAL",
			BusyTimeout: 5000,
		},
		PostgreSQL: PostgreSQLConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "relaybot",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
			ConnMaxIdleTime: 5 * time.Minute,
		},
	}
}

// Backend is the open connection the store runs on.
type Backend struct {
	Type BackendType
	*backends.Conn
}

// Open connects to the backend selected by cfg. The schema is not touched;
// see Store.Migrate.
func Open(ctx context.Context, cfg HubConfig, logger *slog.Logger) (*Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var (
		conn *backends.Conn
		err  error
	)
	switch cfg.Backend {
	case "", BackendSQLite:
		cfg.Backend = BackendSQLite
		conn, err = backends.OpenSQLite(cfg.SQLite)
	case BackendPostgreSQL:
		pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		conn, err = backends.OpenPostgreSQL(pingCtx, cfg.PostgreSQL, logger)
	default:
		return nil, fmt.Errorf("unsupported database backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Backend, err)
	}

	logger.Info("store opened", "backend", cfg.Backend)
	return &Backend{Type: cfg.Backend, Conn: conn}, nil
}
