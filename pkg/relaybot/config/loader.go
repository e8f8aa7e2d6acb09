package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables holding secrets. The vault and the keyring use the
// same names.
const (
	EnvAPIID          = "RELAYBOT_API_ID"
	EnvAPIHash        = "RELAYBOT_API_HASH"
	EnvBotToken       = "RELAYBOT_BOT_TOKEN"
	EnvSessionKey     = "RELAYBOT_SESSION_KEY"
	EnvDefaultSession = "RELAYBOT_DEFAULT_SESSION"
	EnvVaultPassword  = "RELAYBOT_VAULT_PASSWORD"
)

// configCandidates are tried in order when no --config is given.
var configCandidates = []string{
	"relaybot.yaml",
	"relaybot.yml",
	"config.yaml",
	"config.yml",
	"configs/relaybot.yaml",
}

// envRef matches ${NAME}, ${NAME:-fallback}, ${NAME:?message} and $NAME.
var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::([-?])([^}]*))?\}|\$([A-Z_][A-Z0-9_]*)`)

// Load reads path, or the first candidate file when path is empty. With no
// file at all the defaults are returned, secrets taken from the environment.
// The second result is the file that was read.
func Load(path string) (*Config, string, error) {
	if path == "" {
		path = FindConfigFile()
	}
	if path == "" {
		loadEnvFiles()
		cfg := DefaultConfig()
		resolveEnvSecrets(cfg)
		return cfg, "", nil
	}
	cfg, err := LoadConfigFromFile(path)
	if err != nil {
		return nil, path, fmt.Errorf("loading config from %s: %w", path, err)
	}
	return cfg, path, nil
}

// LoadConfigFromFile reads a YAML config after loading .env files. Variable
// references are expanded and relative paths are taken from the file's
// directory.
func LoadConfigFromFile(path string) (*Config, error) {
	loadEnvFiles()

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	expanded, err := expandEnv(string(raw))
	if err != nil {
		return nil, err
	}
	cfg, err := ParseConfig([]byte(expanded))
	if err != nil {
		return nil, err
	}

	resolveEnvSecrets(cfg)
	resolveRelativePaths(cfg, filepath.Dir(path))
	warnOpenPermissions(path)
	return cfg, nil
}

// ParseConfig overlays YAML on DefaultConfig.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}
	return cfg, nil
}

// SaveConfigToFile writes cfg as YAML with mode 0600, keeping the previous
// file as path.bak. A secret equal to its environment variable is written
// as a ${VAR} reference instead of the value.
func SaveConfigToFile(cfg *Config, path string) error {
	out := *cfg
	for _, s := range secretRefs(&out) {
		if *s.field != "" && !IsEnvReference(*s.field) && os.Getenv(s.env) == *s.field {
			*s.field = "${" + s.env + "}"
		}
	}
	data, err := yaml.Marshal(&out)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	if prev, err := os.ReadFile(path); err == nil {
		_ = os.WriteFile(path+".bak", prev, 0o600)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// FindConfigFile returns the first existing candidate config file, or "".
func FindConfigFile() string {
	for _, p := range configCandidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// AuditSecrets warns about credentials written in clear in the config file.
func AuditSecrets(cfg *Config, logger *slog.Logger) {
	for field, v := range map[string]string{
		"telegram.bot_token": cfg.Telegram.BotToken,
		"telegram.api_hash":  cfg.Telegram.APIHash,
	} {
		if v != "" && !IsEnvReference(v) {
			logger.Warn("plain-text secret in config file",
				"field", field, "hint", "move it to the vault with 'relaybot config vault-set'")
		}
	}
}

// IsEnvReference reports whether s is a variable reference left unexpanded.
func IsEnvReference(s string) bool {
	return strings.HasPrefix(s, "$")
}

func loadEnvFiles() {
	// godotenv never overrides variables that are already set.
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")
}

// expandEnv substitutes variable references in input. Unset references
// without a modifier are kept as written; an unset ${NAME:?message} is an
// error.
func expandEnv(input string) (string, error) {
	var (
		b    strings.Builder
		errs []error
		last int
	)
	for _, m := range envRef.FindAllStringSubmatchIndex(input, -1) {
		b.WriteString(input[last:m[0]])
		last = m[1]
		group := func(i int) string {
			if m[2*i] < 0 {
				return ""
			}
			return input[m[2*i]:m[2*i+1]]
		}
		whole, name, modifier, arg := group(0), group(1), group(2), group(3)
		if name == "" {
			name = group(4)
		}

		if val, ok := os.LookupEnv(name); ok {
			b.WriteString(val)
			continue
		}
		switch modifier {
		case "-":
			b.WriteString(arg)
		case "?":
			if arg == "" {
				arg = "required variable is not set"
			}
			errs = append(errs, fmt.Errorf("%s: %s", name, strings.TrimSpace(arg)))
		default:
			b.WriteString(whole)
		}
	}
	b.WriteString(input[last:])
	if len(errs) > 0 {
		return "", fmt.Errorf("config variables: %w", errors.Join(errs...))
	}
	return b.String(), nil
}

type secretRef struct {
	field *string
	env   string
}

// secretRefs lists the string secrets of cfg with their variables.
func secretRefs(cfg *Config) []secretRef {
	return []secretRef{
		{&cfg.Telegram.APIHash, EnvAPIHash},
		{&cfg.Telegram.BotToken, EnvBotToken},
		{&cfg.Telegram.DefaultSession, EnvDefaultSession},
		{&cfg.Security.SessionKey, EnvSessionKey},
	}
}

// resolveEnvSecrets fills empty or unexpanded secrets from the environment.
func resolveEnvSecrets(cfg *Config) {
	for _, s := range secretRefs(cfg) {
		if *s.field != "" && !IsEnvReference(*s.field) {
			continue
		}
		if v := os.Getenv(s.env); v != "" {
			*s.field = v
		}
	}
	if cfg.Telegram.APIID == 0 {
		if id, err := strconv.Atoi(os.Getenv(EnvAPIID)); err == nil {
			cfg.Telegram.APIID = id
		}
	}
}

// resolveRelativePaths anchors the data paths at dir so the bot behaves
// the same from any working directory.
func resolveRelativePaths(cfg *Config, dir string) {
	for _, p := range []*string{
		&cfg.Database.SQLite.Path,
		&cfg.Media.Workspace.Dir,
		&cfg.MTProto.PeerDB,
		&cfg.Logging.File,
	} {
		*p = anchorPath(*p, dir)
	}
}

func anchorPath(path, dir string) string {
	if path == "" {
		return ""
	}
	if rest, ok := strings.CutPrefix(path, "~/"); ok {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, rest)
		}
	}
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}

func warnOpenPermissions(path string) {
	info, err := os.Stat(path)
	if err != nil {
		return
	}
	if perm := info.Mode().Perm(); perm&0o044 != 0 {
		slog.Warn("config file is readable by other users",
			"path", path, "mode", fmt.Sprintf("%04o", perm), "fix", "chmod 600 "+path)
	}
}
