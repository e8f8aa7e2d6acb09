package commands

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/jholhewres/relaybot/pkg/relaybot/config"
	"github.com/jholhewres/relaybot/pkg/relaybot/database"
)

// Where setup puts the secrets.
const (
	storeVault   = "vault"
	storeKeyring = "keyring"
	storeConfig  = "config"
)

// setupAnswers holds the wizard input.
type setupAnswers struct {
	APIID        string
	APIHash      string
	BotToken     string
	Owners       string
	Freemium     string
	Backend      string
	Postgres     postgresAnswers
	StateBackend string
	RedisAddr    string
	SecretStore  string
	VaultPass    string
}

type postgresAnswers struct {
	Host     string
	Database string
	User     string
	Password string
}

// newSetupCmd creates `relaybot setup`, an interactive configuration wizard.
func newSetupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Interactive configuration wizard",
		Long: `Ask for the Telegram credentials, owners and storage options, store the
secrets in the vault or the OS keyring, and write the config file.`,
		RunE: runSetup,
	}
}

func runSetup(cmd *cobra.Command, _ []string) error {
	path, _ := cmd.Root().PersistentFlags().GetString("config")
	if path == "" {
		path = "relaybot.yaml"
	}

	a := setupAnswers{
		Freemium:     strconv.Itoa(config.DefaultConfig().Telegram.FreemiumLimit),
		Backend:      string(database.BackendSQLite),
		StateBackend: "memory",
		RedisAddr:    "localhost:6379",
		SecretStore:  storeVault,
	}

	if err := setupForm(&a).Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			fmt.Println("Setup cancelled.")
			return nil
		}
		return err
	}

	cfg, err := a.config()
	if err != nil {
		return err
	}

	secrets := map[string]string{
		config.EnvAPIHash:    a.APIHash,
		config.EnvBotToken:   a.BotToken,
		config.EnvSessionKey: cfg.Security.SessionKey,
	}
	switch a.SecretStore {
	case storeVault:
		vault := config.NewVault(vaultPath(path))
		if vault.Exists() {
			if err := vault.Unlock(a.VaultPass); err != nil {
				return fmt.Errorf("existing vault: %w", err)
			}
		} else if err := vault.Create(a.VaultPass); err != nil {
			return err
		}
		for k, v := range secrets {
			if err := vault.Set(k, v); err != nil {
				return err
			}
		}
		vault.Lock()
		clearSecrets(cfg)
		fmt.Printf("Secrets encrypted in %s. Set %s to run unattended.\n", vault.Path(), config.EnvVaultPassword)
	case storeKeyring:
		for k, v := range secrets {
			if err := config.StoreKeyring(k, v); err != nil {
				return fmt.Errorf("storing %s in keyring: %w", k, err)
			}
		}
		clearSecrets(cfg)
		fmt.Println("Secrets stored in the OS keyring.")
	}

	if err := config.SaveConfigToFile(cfg, path); err != nil {
		return err
	}
	fmt.Printf("Configuration written to %s\n", path)
	fmt.Println("Start the bot with: relaybot serve")
	return nil
}

func setupForm(a *setupAnswers) *huh.Form {
	secretOptions := []huh.Option[string]{
		huh.NewOption("Encrypted vault (password protected)", storeVault),
		huh.NewOption("Config file (plain text)", storeConfig),
	}
	if config.KeyringAvailable() {
		secretOptions = append(secretOptions, huh.NewOption("OS keyring", storeKeyring))
	}

	return huh.NewForm(
		huh.NewGroup(
			huh.NewNote().
				Title("relaybot setup").
				Description("API ID and hash come from https://my.telegram.org, the bot token from @BotFather."),
			huh.NewInput().Title("API ID").Value(&a.APIID).Validate(validateInt),
			huh.NewInput().Title("API hash").Value(&a.APIHash).EchoMode(huh.EchoModePassword).Validate(required),
			huh.NewInput().Title("Bot token").Value(&a.BotToken).EchoMode(huh.EchoModePassword).Validate(required),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Owner user IDs").
				Description("Comma separated. Owners get admin commands.").
				Value(&a.Owners).
				Validate(validateOwners),
			huh.NewInput().
				Title("Free batch size").
				Description("0 closes the bot to users without a plan.").
				Value(&a.Freemium).
				Validate(validateInt),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Database").
				Options(
					huh.NewOption("SQLite (single file)", string(database.BackendSQLite)),
					huh.NewOption("PostgreSQL", string(database.BackendPostgreSQL)),
				).
				Value(&a.Backend),
			huh.NewSelect[string]().
				Title("Cooldown state").
				Options(
					huh.NewOption("In memory", "memory"),
					huh.NewOption("Redis (shared)", "redis"),
				).
				Value(&a.StateBackend),
		),
		huh.NewGroup(
			huh.NewInput().Title("PostgreSQL host").Value(&a.Postgres.Host).Validate(required),
			huh.NewInput().Title("PostgreSQL database").Value(&a.Postgres.Database).Validate(required),
			huh.NewInput().Title("PostgreSQL user").Value(&a.Postgres.User).Validate(required),
			huh.NewInput().Title("PostgreSQL password").Value(&a.Postgres.Password).EchoMode(huh.EchoModePassword),
		).WithHideFunc(func() bool { return a.Backend != string(database.BackendPostgreSQL) }),
		huh.NewGroup(
			huh.NewInput().Title("Redis address").Value(&a.RedisAddr).Validate(required),
		).WithHideFunc(func() bool { return a.StateBackend != "redis" }),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Where should secrets be stored?").
				Options(secretOptions...).
				Value(&a.SecretStore),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Vault master password").
				Description("Minimum 8 characters. It is never stored.").
				Value(&a.VaultPass).
				EchoMode(huh.EchoModePassword).
				Validate(func(s string) error {
					if len(s) < 8 {
						return errors.New("minimum 8 characters")
					}
					return nil
				}),
		).WithHideFunc(func() bool { return a.SecretStore != storeVault }),
	)
}

// config turns the answers into a configuration.
func (a *setupAnswers) config() (*config.Config, error) {
	cfg := config.DefaultConfig()

	var err error
	if cfg.Telegram.APIID, err = strconv.Atoi(strings.TrimSpace(a.APIID)); err != nil {
		return nil, fmt.Errorf("api id: %w", err)
	}
	cfg.Telegram.APIHash = strings.TrimSpace(a.APIHash)
	cfg.Telegram.BotToken = strings.TrimSpace(a.BotToken)
	if cfg.Telegram.OwnerIDs, err = parseOwners(a.Owners); err != nil {
		return nil, err
	}
	if cfg.Telegram.FreemiumLimit, err = strconv.Atoi(strings.TrimSpace(a.Freemium)); err != nil {
		return nil, fmt.Errorf("free batch size: %w", err)
	}

	cfg.Database.Backend = database.BackendType(a.Backend)
	if cfg.Database.Backend == database.BackendPostgreSQL {
		cfg.Database.PostgreSQL.Host = a.Postgres.Host
		cfg.Database.PostgreSQL.Database = a.Postgres.Database
		cfg.Database.PostgreSQL.User = a.Postgres.User
		cfg.Database.PostgreSQL.Password = a.Postgres.Password
	}
	cfg.State.Backend = a.StateBackend
	if a.StateBackend == "redis" {
		cfg.State.Redis.Addr = a.RedisAddr
	}

	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generating session key: %w", err)
	}
	cfg.Security.SessionKey = hex.EncodeToString(key)

	return cfg, cfg.Validate()
}

// clearSecrets replaces secrets kept elsewhere with env references.
func clearSecrets(cfg *config.Config) {
	cfg.Telegram.APIHash = "${" + config.EnvAPIHash + "}"
	cfg.Telegram.BotToken = "${" + config.EnvBotToken + "}"
	cfg.Security.SessionKey = "${" + config.EnvSessionKey + "}"
}

func parseOwners(s string) ([]int64, error) {
	var ids []int64
	for _, f := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' }) {
		id, err := strconv.ParseInt(f, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("owner ID %q: %w", f, err)
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, errors.New("at least one owner is required")
	}
	return ids, nil
}

func validateOwners(s string) error {
	_, err := parseOwners(s)
	return err
}

func validateInt(s string) error {
	if _, err := strconv.Atoi(strings.TrimSpace(s)); err != nil {
		return errors.New("must be a number")
	}
	return nil
}

func required(s string) error {
	if strings.TrimSpace(s) == "" {
		return errors.New("required")
	}
	return nil
}
