package commands

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jholhewres/relaybot/pkg/relaybot/config"
	"github.com/jholhewres/relaybot/pkg/relaybot/database"
)

func TestRootCommands(t *testing.T) {
	root := NewRootCmd("test")
	want := []string{"serve", "login", "premium", "config", "setup", "fetch", "health", "version"}
	for _, name := range want {
		found := false
		for _, c := range root.Commands() {
			if c.Name() == name {
				found = true
			}
		}
		if !found {
			t.Errorf("missing subcommand %q", name)
		}
	}
	if root.PersistentFlags().Lookup("config") == nil {
		t.Error("missing --config flag")
	}
}

func TestParseOwners(t *testing.T) {
	ids, err := parseOwners("1, 2 3")
	if err != nil || len(ids) != 3 || ids[2] != 3 {
		t.Errorf("parseOwners = %v, %v", ids, err)
	}
	if _, err := parseOwners(""); err == nil {
		t.Error("empty owners accepted")
	}
	if _, err := parseOwners("12,abc"); err == nil {
		t.Error("invalid owner accepted")
	}
}

func TestSetupAnswers(t *testing.T) {
	a := setupAnswers{
		APIID:        "12345",
		APIHash:      " abcdef ",
		BotToken:     "1:AA",
		Owners:       "42",
		Freemium:     "0",
		Backend:      string(database.BackendPostgreSQL),
		StateBackend: "redis",
		RedisAddr:    "redis:6379",
		Postgres:     postgresAnswers{Host: "db", Database: "relay", User: "bot"},
	}
	cfg, err := a.config()
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	if cfg.Telegram.APIHash != "abcdef" || cfg.Telegram.FreemiumLimit != 0 {
		t.Errorf("telegram = %+v", cfg.Telegram)
	}
	if cfg.Database.PostgreSQL.Host != "db" || cfg.State.Redis.Addr != "redis:6379" {
		t.Error("storage answers not applied")
	}
	if len(cfg.Security.SessionKey) != 64 {
		t.Errorf("session key = %q", cfg.Security.SessionKey)
	}

	clearSecrets(cfg)
	if !config.IsEnvReference(cfg.Telegram.BotToken) || !config.IsEnvReference(cfg.Security.SessionKey) {
		t.Error("secrets not replaced by references")
	}

	a.APIID = "x"
	if _, err := a.config(); err == nil {
		t.Error("invalid api id accepted")
	}
}

func TestNewLogger(t *testing.T) {
	file := filepath.Join(t.TempDir(), "logs", "relaybot.log")
	logger, closer, err := newLogger(config.LoggingConfig{Level: "warn", Format: "json", File: file, MaxSizeMB: 1}, false)
	if err != nil {
		t.Fatalf("newLogger: %v", err)
	}
	logger.Info("hidden")
	logger.Warn("visible", "k", "v")
	if err := closer.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(file)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "hidden") || !strings.Contains(string(data), `"msg":"visible"`) {
		t.Errorf("log file = %s", data)
	}

	if parseLevel("DEBUG") != slog.LevelDebug || parseLevel("nonsense") != slog.LevelInfo {
		t.Error("parseLevel")
	}
}

func TestHealthChecks(t *testing.T) {
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Database.SQLite.Path = filepath.Join(dir, "relaybot.db")
	cfg.Media.Workspace.Dir = filepath.Join(dir, "work")
	cfg.Media.Tools.FFmpegPath = "relaybot-missing-ffmpeg"
	cfg.Media.Tools.FFprobePath = ""
	cfg.Security.SessionKey = "health-test-key"

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	store, err := openStore(context.Background(), cfg, logger)
	if err != nil {
		t.Fatalf("openStore: %v", err)
	}
	defer store.Close()

	checks := runHealthChecks(context.Background(), cfg, store)
	byName := map[string]healthCheck{}
	for _, c := range checks {
		byName[c.Name] = c
	}
	for _, name := range []string{"database", "schema", "users", "workspace"} {
		if !byName[name].OK {
			t.Errorf("%s check failed: %s", name, byName[name].Detail)
		}
	}
	if c := byName["sessions"]; !c.OK || c.Detail != "0" {
		t.Errorf("sessions = %+v", c)
	}
	if c := byName["relaybot-missing-ffmpeg"]; !c.OK || !strings.Contains(c.Detail, "not found") {
		t.Errorf("missing tool check = %+v", c)
	}
}

func TestOpenStoreRequiresSessionKey(t *testing.T) {
	for _, key := range []string{"", "${RELAYBOT_SESSION_KEY}"} {
		cfg := config.DefaultConfig()
		cfg.Database.SQLite.Path = filepath.Join(t.TempDir(), "relaybot.db")
		cfg.Security.SessionKey = key
		if _, err := openStore(context.Background(), cfg, slog.Default()); err == nil {
			t.Errorf("session key %q accepted", key)
		}
	}
}

func TestVaultPath(t *testing.T) {
	if got := vaultPath(""); got != config.VaultFile {
		t.Errorf("vaultPath empty = %q", got)
	}
	if got := vaultPath("/etc/relaybot/relaybot.yaml"); got != "/etc/relaybot/"+config.VaultFile {
		t.Errorf("vaultPath = %q", got)
	}
}
