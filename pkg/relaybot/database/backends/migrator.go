package backends

import (
	"context"
	"database/sql"
	"fmt"
)

// Dialect selects the SQL flavour of the schema.
type Dialect string

const (
	DialectSQLite     Dialect = "sqlite"
	DialectPostgreSQL Dialect = "postgresql"
)

// Migrator applies the versioned schema, recording progress in schema_version.
type Migrator struct {
	db      *sql.DB
	dialect Dialect
}

// NewMigrator creates a migrator for db.
func NewMigrator(db *sql.DB, dialect Dialect) *Migrator {
	return &Migrator{db: db, dialect: dialect}
}

// LatestVersion is the number of known migrations.
func (m *Migrator) LatestVersion() int {
	return len(migrations(m.dialect))
}

// CurrentVersion returns the current schema version, 0 on a fresh database.
func (m *Migrator) CurrentVersion(ctx context.Context) (int, error) {
	if err := m.ensureVersionTable(ctx); err != nil {
		return 0, err
	}
	var version int
	err := m.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, nil
		}
		return 0, err
	}
	return version, nil
}

// Migrate applies migrations up to target. A target of 0 means latest.
func (m *Migrator) Migrate(ctx context.Context, target int) error {
	steps := migrations(m.dialect)
	if target <= 0 || target > len(steps) {
		target = len(steps)
	}

	current, err := m.CurrentVersion(ctx)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for v := current + 1; v <= target; v++ {
		if err := m.apply(ctx, v, steps[v-1]); err != nil {
			return fmt.Errorf("apply migration %d: %w", v, err)
		}
	}
	return nil
}

// NeedsMigration returns true if schema is outdated.
func (m *Migrator) NeedsMigration(ctx context.Context) (bool, error) {
	current, err := m.CurrentVersion(ctx)
	if err != nil {
		return false, err
	}
	return current < m.LatestVersion(), nil
}

func (m *Migrator) apply(ctx context.Context, version int, ddl string) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, ddl); err != nil {
		return err
	}

	insert := "INSERT OR IGNORE INTO schema_version (version) VALUES (?)"
	if m.dialect == DialectPostgreSQL {
		insert = "INSERT INTO schema_version (version) VALUES ($1) ON CONFLICT DO NOTHING"
	}
	if _, err := tx.ExecContext(ctx, insert, version); err != nil {
		return fmt.Errorf("record migration: %w", err)
	}
	return tx.Commit()
}

func (m *Migrator) ensureVersionTable(ctx context.Context) error {
	ddl := `CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`
	if m.dialect == DialectPostgreSQL {
		ddl = `CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at TIMESTAMPTZ DEFAULT NOW()
	)`
	}
	if _, err := m.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}
	return nil
}
