package config

import (
	"log/slog"
	"os"
	"strconv"

	"github.com/zalando/go-keyring"
	"golang.org/x/term"
)

// keyringService is the OS keyring service name.
const keyringService = "relaybot"

// Secret names shared by the vault and the keyring. They match the
// environment variables so vault secrets can be injected as is.
var secretFields = []string{EnvAPIHash, EnvBotToken, EnvSessionKey, EnvDefaultSession, EnvAPIID}

// StoreKeyring saves a secret in the OS keyring.
func StoreKeyring(key, value string) error {
	return keyring.Set(keyringService, key, value)
}

// GetKeyring returns a secret from the OS keyring, or "" if absent.
func GetKeyring(key string) string {
	val, err := keyring.Get(keyringService, key)
	if err != nil {
		return ""
	}
	return val
}

// DeleteKeyring removes a secret from the OS keyring.
func DeleteKeyring(key string) error {
	return keyring.Delete(keyringService, key)
}

// KeyringAvailable reports whether the OS keyring accepts writes.
func KeyringAvailable() bool {
	const probe = "__relaybot_probe__"
	if err := keyring.Set(keyringService, probe, "ok"); err != nil {
		return false
	}
	_ = keyring.Delete(keyringService, probe)
	return true
}

// ResolveSecrets fills cfg's secrets. Sources in order: the encrypted vault
// at vaultPath (password from RELAYBOT_VAULT_PASSWORD or a terminal prompt),
// the OS keyring, then whatever the config and environment already set.
// It returns the vault when it was unlocked, nil otherwise.
func ResolveSecrets(cfg *Config, vaultPath string, logger *slog.Logger) *Vault {
	if vaultPath == "" {
		vaultPath = VaultFile
	}
	vault := NewVault(vaultPath)
	if vault.Exists() {
		unlockVault(vault, logger)
	}

	for _, name := range secretFields {
		val := ""
		source := ""
		if vault.IsUnlocked() {
			if v, err := vault.Get(name); err == nil && v != "" {
				val, source = v, "vault"
			}
		}
		if val == "" {
			if v := GetKeyring(name); v != "" {
				val, source = v, "keyring"
			}
		}
		if val == "" {
			continue
		}
		applySecret(cfg, name, val)
		logger.Debug("secret loaded", "name", name, "source", source)
	}

	// An unresolved default session means there is none.
	if IsEnvReference(cfg.Telegram.DefaultSession) {
		cfg.Telegram.DefaultSession = ""
	}
	if cfg.Telegram.BotToken == "" || IsEnvReference(cfg.Telegram.BotToken) {
		logger.Warn("no bot token found. Set one with: relaybot config vault-set " + EnvBotToken)
	}
	if vault.IsUnlocked() {
		return vault
	}
	return nil
}

func unlockVault(vault *Vault, logger *slog.Logger) {
	if pass := os.Getenv(EnvVaultPassword); pass != "" {
		if err := vault.Unlock(pass); err != nil {
			logger.Warn("failed to unlock vault with "+EnvVaultPassword, "error", err)
			return
		}
		logger.Info("vault unlocked via " + EnvVaultPassword)
		return
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		logger.Info("vault exists but skipping (non-interactive, no " + EnvVaultPassword + ")")
		return
	}
	password, err := ReadPassword("Vault password: ")
	if err != nil {
		logger.Warn("failed to read vault password", "error", err)
		return
	}
	if err := vault.Unlock(password); err != nil {
		logger.Warn("failed to unlock vault", "error", err)
	}
}

// applySecret writes a named secret into its config field.
func applySecret(cfg *Config, name, val string) {
	switch name {
	case EnvAPIHash:
		cfg.Telegram.APIHash = val
	case EnvBotToken:
		cfg.Telegram.BotToken = val
	case EnvSessionKey:
		cfg.Security.SessionKey = val
	case EnvDefaultSession:
		cfg.Telegram.DefaultSession = val
	case EnvAPIID:
		if id, err := strconv.Atoi(val); err == nil {
			cfg.Telegram.APIID = id
		}
	}
}

// IsSecretName reports whether name is a secret ResolveSecrets knows.
func IsSecretName(name string) bool {
	for _, s := range secretFields {
		if s == name {
			return true
		}
	}
	return false
}
