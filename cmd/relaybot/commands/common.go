package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/jholhewres/relaybot/pkg/relaybot/config"
	"github.com/jholhewres/relaybot/pkg/relaybot/database"
)

// resolveConfig loads the --config file (or a discovered one) and resolves
// secrets from the vault and the OS keyring.
func resolveConfig(cmd *cobra.Command, logger *slog.Logger) (*config.Config, string, error) {
	configPath, _ := cmd.Root().PersistentFlags().GetString("config")
	cfg, path, err := config.Load(configPath)
	if err != nil {
		return nil, "", err
	}
	if path != "" {
		logger.Debug("config loaded", "path", path)
	}
	config.AuditSecrets(cfg, logger)
	config.ResolveSecrets(cfg, vaultPath(path), logger)
	return cfg, path, nil
}

// vaultPath places the vault next to the config file.
func vaultPath(configPath string) string {
	if configPath == "" {
		return config.VaultFile
	}
	return filepath.Join(filepath.Dir(configPath), config.VaultFile)
}

// cliLogger is the logger used before the config is known.
func cliLogger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelWarn
	if verbose, _ := cmd.Root().PersistentFlags().GetBool("verbose"); verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// newLogger builds the service logger from cfg. When logging.file is set
// output also goes to a rotated file; the returned closer flushes it.
func newLogger(cfg config.LoggingConfig, verbose bool) (*slog.Logger, io.Closer, error) {
	level := parseLevel(cfg.Level)
	if verbose {
		level = slog.LevelDebug
	}

	var out io.Writer = os.Stdout
	var closer io.Closer = io.NopCloser(nil)
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o700); err != nil {
			return nil, nil, fmt.Errorf("creating log dir: %w", err)
		}
		rotator := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
		out = io.MultiWriter(os.Stdout, rotator)
		closer = rotator
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}
	return slog.New(handler), closer, nil
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// openStore opens and migrates the store.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*database.Store, error) {
	switch key := cfg.Security.SessionKey; {
	case key == "":
		return nil, fmt.Errorf("security.session_key is empty: set %s or store it with 'relaybot config vault-set'", config.EnvSessionKey)
	case config.IsEnvReference(key):
		return nil, fmt.Errorf("security.session_key is unresolved (%s): unlock the vault or set the variable", key)
	}
	if cfg.Database.Backend == "" || cfg.Database.Backend == database.BackendSQLite {
		if err := os.MkdirAll(filepath.Dir(cfg.Database.SQLite.Path), 0o700); err != nil {
			return nil, fmt.Errorf("creating data dir: %w", err)
		}
	}
	backend, err := database.Open(ctx, cfg.Database, logger)
	if err != nil {
		return nil, err
	}
	store, err := database.NewStore(backend, cfg.Security.SessionKey)
	if err != nil {
		backend.Close()
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("migrating store: %w", err)
	}
	return store, nil
}

// openCLIStore loads the config and opens the store for one-shot commands.
func openCLIStore(cmd *cobra.Command) (*config.Config, *database.Store, error) {
	logger := cliLogger(cmd)
	cfg, _, err := resolveConfig(cmd, logger)
	if err != nil {
		return nil, nil, err
	}
	store, err := openStore(cmd.Context(), cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return cfg, store, nil
}
