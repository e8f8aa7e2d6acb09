package backends

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteConfig is the database.sqlite section of relaybot.yaml.
type SQLiteConfig struct {
	Path        string `yaml:"path"`
	JournalMode string `yaml:"journal_mode"`
	// BusyTimeout is in milliseconds.
	BusyTimeout int `yaml:"busy_timeout"`
}

// OpenSQLite opens (creating when missing) the database file at cfg.Path.
// Foreign keys are always enforced.
func OpenSQLite(cfg SQLiteConfig) (*Conn, error) {
	if cfg.Path == "" {
		cfg.Path = "./data/relaybot.db"
	}
	if cfg.JournalMode == "" {
		cfg.JournalMode = "WAL"
	}
	if cfg.BusyTimeout <= 0 {
		cfg.BusyTimeout = 5000
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o700); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}

	params := url.Values{}
	params.Set("_journal_mode", cfg.JournalMode)
	params.Set("_busy_timeout", strconv.Itoa(cfg.BusyTimeout))
	params.Set("_foreign_keys", "on")

	db, err := sql.Open("sqlite3", cfg.Path+"?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", cfg.Path, err)
	}
	// go-sqlite3 serializes writers badly across pooled connections.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("opening %s: %w", cfg.Path, err)
	}
	return newConn(db, DialectSQLite), nil
}
