package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/zalando/go-keyring"
)

func TestVault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.vault")
	v := NewVault(path)

	if err := v.Set("k", "v"); !errors.Is(err, ErrVaultLocked) {
		t.Errorf("Set on locked vault = %v", err)
	}
	if err := v.Create(""); err == nil {
		t.Error("empty password should be refused")
	}
	if err := v.Create("correct-password"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := v.Create("again"); err == nil {
		t.Error("expected error creating an existing vault")
	}

	t.Run("set and get", func(t *testing.T) {
		if err := v.Set(EnvBotToken, "123:ABC"); err != nil {
			t.Fatal(err)
		}
		got, err := v.Get(EnvBotToken)
		if err != nil || got != "123:ABC" {
			t.Errorf("Get = %q, %v", got, err)
		}
		if got, _ := v.Get("missing"); got != "" {
			t.Errorf("missing key = %q", got)
		}
		if err := v.Set("", "x"); err == nil {
			t.Error("empty name accepted")
		}
	})

	t.Run("file does not contain plaintext", func(t *testing.T) {
		raw, _ := os.ReadFile(path)
		if strings.Contains(string(raw), "123:ABC") {
			t.Error("secret stored in clear")
		}
		if info, _ := os.Stat(path); info.Mode().Perm() != 0o600 {
			t.Errorf("mode = %v", info.Mode().Perm())
		}
	})

	t.Run("unlock", func(t *testing.T) {
		other := NewVault(path)
		if err := other.Unlock("wrong"); !errors.Is(err, ErrWrongPassword) {
			t.Errorf("wrong password = %v", err)
		}
		if other.IsUnlocked() {
			t.Error("vault unlocked with wrong password")
		}
		if err := other.Unlock("correct-password"); err != nil {
			t.Fatalf("Unlock: %v", err)
		}
		keys, err := other.Keys()
		if err != nil || len(keys) != 1 || keys[0] != EnvBotToken {
			t.Errorf("Keys = %v, %v", keys, err)
		}
		other.Lock()
		if _, err := other.Get(EnvBotToken); !errors.Is(err, ErrVaultLocked) {
			t.Errorf("Get after Lock = %v", err)
		}
	})

	t.Run("change password", func(t *testing.T) {
		if err := v.ChangePassword("new-password"); err != nil {
			t.Fatal(err)
		}
		reopened := NewVault(path)
		if err := reopened.Unlock("correct-password"); err == nil {
			t.Error("old password still works")
		}
		if err := reopened.Unlock("new-password"); err != nil {
			t.Fatalf("new password: %v", err)
		}
		if got, _ := reopened.Get(EnvBotToken); got != "123:ABC" {
			t.Errorf("secret after rekey = %q", got)
		}
	})

	t.Run("delete", func(t *testing.T) {
		if err := v.Delete(EnvBotToken); err != nil {
			t.Fatal(err)
		}
		if keys, _ := v.Keys(); len(keys) != 0 {
			t.Errorf("keys after delete = %v", keys)
		}
	})
}

func TestReadLine(t *testing.T) {
	got, err := readLine(strings.NewReader("secret\r\nignored"))
	if err != nil || got != "secret" {
		t.Errorf("readLine = %q, %v", got, err)
	}
	if got, err := readLine(strings.NewReader("no-newline")); err != nil || got != "no-newline" {
		t.Errorf("readLine without newline = %q, %v", got, err)
	}
	if _, err := readLine(strings.NewReader("")); err == nil {
		t.Error("expected error on empty input")
	}
}

func TestResolveSecrets(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	t.Run("keyring", func(t *testing.T) {
		keyring.MockInit()
		if !KeyringAvailable() {
			t.Fatal("mock keyring should be available")
		}
		if err := StoreKeyring(EnvBotToken, "from-keyring"); err != nil {
			t.Fatal(err)
		}
		cfg := DefaultConfig()
		cfg.Telegram.APIHash = "from-config"

		if v := ResolveSecrets(cfg, filepath.Join(t.TempDir(), "none.vault"), logger); v != nil {
			t.Error("no vault should be returned")
		}
		if cfg.Telegram.BotToken != "from-keyring" {
			t.Errorf("bot token = %q", cfg.Telegram.BotToken)
		}
		if cfg.Telegram.APIHash != "from-config" {
			t.Errorf("config value overwritten: %q", cfg.Telegram.APIHash)
		}

		if err := DeleteKeyring(EnvBotToken); err != nil {
			t.Fatal(err)
		}
		if GetKeyring(EnvBotToken) != "" {
			t.Error("keyring entry not deleted")
		}
	})

	t.Run("vault wins over keyring", func(t *testing.T) {
		keyring.MockInit()
		_ = StoreKeyring(EnvBotToken, "from-keyring")
		_ = StoreKeyring(EnvSessionKey, "key-from-keyring")

		path := filepath.Join(t.TempDir(), "secrets.vault")
		v := NewVault(path)
		if err := v.Create("pw"); err != nil {
			t.Fatal(err)
		}
		_ = v.Set(EnvBotToken, "from-vault")
		_ = v.Set(EnvAPIID, "98765")

		t.Setenv(EnvVaultPassword, "pw")
		cfg := DefaultConfig()
		if got := ResolveSecrets(cfg, path, logger); got == nil || !got.IsUnlocked() {
			t.Fatal("expected unlocked vault")
		}
		if cfg.Telegram.BotToken != "from-vault" {
			t.Errorf("bot token = %q", cfg.Telegram.BotToken)
		}
		if cfg.Telegram.APIID != 98765 {
			t.Errorf("api id = %d", cfg.Telegram.APIID)
		}
		if cfg.Security.SessionKey != "key-from-keyring" {
			t.Errorf("session key = %q", cfg.Security.SessionKey)
		}
	})

	t.Run("wrong vault password falls back", func(t *testing.T) {
		keyring.MockInit()
		path := filepath.Join(t.TempDir(), "secrets.vault")
		v := NewVault(path)
		if err := v.Create("pw"); err != nil {
			t.Fatal(err)
		}
		t.Setenv(EnvVaultPassword, "nope")
		cfg := DefaultConfig()
		cfg.Telegram.BotToken = "from-config"
		if got := ResolveSecrets(cfg, path, logger); got != nil {
			t.Error("vault should stay locked")
		}
		if cfg.Telegram.BotToken != "from-config" {
			t.Errorf("bot token = %q", cfg.Telegram.BotToken)
		}
	})

	if !IsSecretName(EnvBotToken) || IsSecretName("HOME") {
		t.Error("IsSecretName")
	}
}
