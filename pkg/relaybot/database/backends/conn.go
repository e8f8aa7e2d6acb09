// Package backends opens the SQL connections behind the relay store and
// owns the versioned schema.
package backends

import (
	"context"
	"database/sql"
	"time"
)

// Conn is an open, reachable connection pool with its schema migrator.
type Conn struct {
	DB       *sql.DB
	Dialect  Dialect
	Migrator *Migrator
}

func newConn(db *sql.DB, dialect Dialect) *Conn {
	return &Conn{DB: db, Dialect: dialect, Migrator: NewMigrator(db, dialect)}
}

// Close closes the pool.
func (c *Conn) Close() error {
	if c == nil || c.DB == nil {
		return nil
	}
	return c.DB.Close()
}

// Status is a point-in-time health report for a connection.
type Status struct {
	Healthy bool
	Latency time.Duration
	Version string
	Error   string

	OpenConnections int
	InUse           int
	Idle            int
	WaitCount       int64
}

// Status pings the server and reports the server version and pool counters.
func (c *Conn) Status(ctx context.Context) Status {
	start := time.Now()
	if err := c.DB.PingContext(ctx); err != nil {
		return Status{Latency: time.Since(start), Error: err.Error()}
	}
	st := Status{Healthy: true, Latency: time.Since(start), Version: "unknown"}

	query := "SELECT version()"
	if c.Dialect == DialectSQLite {
		query = "SELECT 'sqlite ' || sqlite_version()"
	}
	var version string
	if err := c.DB.QueryRowContext(ctx, query).Scan(&version); err == nil {
		st.Version = version
	}

	pool := c.DB.Stats()
	st.OpenConnections = pool.OpenConnections
	st.InUse = pool.InUse
	st.Idle = pool.Idle
	st.WaitCount = pool.WaitCount
	return st
}
