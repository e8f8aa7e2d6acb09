package commands

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jholhewres/relaybot/pkg/relaybot/config"
)

// newConfigCmd creates `relaybot config` for managing configuration and secrets.
func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration and secrets",
		Long: `Manage the relaybot configuration file and where its secrets live.

Secrets (` + strings.Join(secretNames(), ", ") + `) are resolved from the
encrypted vault first, then the OS keyring, then the environment and the
config file.

Examples:
  relaybot config init
  relaybot config show
  relaybot config vault-init
  relaybot config vault-set RELAYBOT_BOT_TOKEN
  relaybot config keyring-set RELAYBOT_API_HASH`,
	}

	cmd.AddCommand(
		newConfigInitCmd(),
		newConfigShowCmd(),
		newConfigValidateCmd(),
		newVaultInitCmd(),
		newVaultSetCmd(),
		newVaultListCmd(),
		newKeyringSetCmd(),
	)
	return cmd
}

func secretNames() []string {
	return []string{config.EnvAPIID, config.EnvAPIHash, config.EnvBotToken, config.EnvSessionKey, config.EnvDefaultSession}
}

func newConfigInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default configuration file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, _ := cmd.Root().PersistentFlags().GetString("config")
			if path == "" {
				path = "relaybot.yaml"
			}
			force, _ := cmd.Flags().GetBool("force")
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}

			cfg := config.DefaultConfig()
			cfg.Telegram.APIHash = "${" + config.EnvAPIHash + "}"
			cfg.Telegram.BotToken = "${" + config.EnvBotToken + "}"
			cfg.Security.SessionKey = "${" + config.EnvSessionKey + "}"
			if err := config.SaveConfigToFile(cfg, path); err != nil {
				return err
			}
			fmt.Printf("Configuration written to %s\n", path)
			fmt.Println("Fill in telegram.api_id and telegram.owner_ids, then store the secrets with 'relaybot config vault-set'.")
			return nil
		},
	}
	cmd.Flags().Bool("force", false, "overwrite an existing file")
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets masked",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, path, err := resolveConfig(cmd, cliLogger(cmd))
			if err != nil {
				return err
			}
			data, err := yaml.Marshal(cfg.Masked())
			if err != nil {
				return err
			}
			if path != "" {
				fmt.Printf("# %s\n", path)
			} else {
				fmt.Println("# no config file found, showing defaults")
			}
			fmt.Print(string(data))
			return nil
		},
	}
}

func newConfigValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration for errors",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := resolveConfig(cmd, cliLogger(cmd))
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			fmt.Println("Configuration is valid.")
			return nil
		},
	}
}

func newVaultInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "vault-init",
		Short: "Create the encrypted vault",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, _ := cmd.Root().PersistentFlags().GetString("config")
			vault := config.NewVault(vaultPath(path))
			if vault.Exists() {
				return fmt.Errorf("vault already exists at %s", vault.Path())
			}

			fmt.Println("Choose a master password (minimum 8 characters). It is never stored.")
			password, err := readNewPassword()
			if err != nil {
				return err
			}
			if err := vault.Create(password); err != nil {
				return err
			}
			vault.Lock()
			fmt.Printf("Vault created at %s\n", vault.Path())
			fmt.Printf("Set %s to unlock it when running as a service.\n", config.EnvVaultPassword)
			return nil
		},
	}
}

func newVaultSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "vault-set <name>",
		Short: "Store a secret in the vault",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := strings.ToUpper(args[0])
			if !config.IsSecretName(name) {
				return fmt.Errorf("unknown secret %q (one of %s)", args[0], strings.Join(secretNames(), ", "))
			}
			vault, err := unlockCLIVault(cmd)
			if err != nil {
				return err
			}
			defer vault.Lock()

			value, err := config.ReadPassword(name + ": ")
			if err != nil {
				return err
			}
			if value == "" {
				return errors.New("empty value")
			}
			if err := vault.Set(name, value); err != nil {
				return err
			}
			fmt.Printf("%s stored in the vault\n", name)
			return nil
		},
	}
}

func newVaultListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "vault-list",
		Short: "List secret names stored in the vault",
		RunE: func(cmd *cobra.Command, _ []string) error {
			vault, err := unlockCLIVault(cmd)
			if err != nil {
				return err
			}
			defer vault.Lock()

			keys, err := vault.Keys()
			if err != nil {
				return err
			}
			if len(keys) == 0 {
				fmt.Println("The vault is empty.")
			}
			for _, k := range keys {
				fmt.Println(k)
			}
			return nil
		},
	}
}

func newKeyringSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keyring-set <name>",
		Short: "Store a secret in the OS keyring",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			name := strings.ToUpper(args[0])
			if !config.IsSecretName(name) {
				return fmt.Errorf("unknown secret %q (one of %s)", args[0], strings.Join(secretNames(), ", "))
			}
			if !config.KeyringAvailable() {
				return errors.New("the OS keyring is not available")
			}
			value, err := config.ReadPassword(name + ": ")
			if err != nil {
				return err
			}
			if value == "" {
				return errors.New("empty value")
			}
			if err := config.StoreKeyring(name, value); err != nil {
				return fmt.Errorf("storing in keyring: %w", err)
			}
			fmt.Printf("%s stored in the OS keyring\n", name)
			return nil
		},
	}
}

// unlockCLIVault opens the vault with RELAYBOT_VAULT_PASSWORD or a prompt.
func unlockCLIVault(cmd *cobra.Command) (*config.Vault, error) {
	path, _ := cmd.Root().PersistentFlags().GetString("config")
	vault := config.NewVault(vaultPath(path))
	if !vault.Exists() {
		return nil, fmt.Errorf("no vault at %s (run 'relaybot config vault-init')", vault.Path())
	}
	password := os.Getenv(config.EnvVaultPassword)
	if password == "" {
		var err error
		if password, err = config.ReadPassword("Vault password: "); err != nil {
			return nil, err
		}
	}
	if err := vault.Unlock(password); err != nil {
		return nil, err
	}
	return vault, nil
}

// readNewPassword asks for a password twice.
func readNewPassword() (string, error) {
	password, err := config.ReadPassword("Master password: ")
	if err != nil {
		return "", err
	}
	if len(password) < 8 {
		return "", errors.New("password too short (minimum 8 characters)")
	}
	confirm, err := config.ReadPassword("Confirm password: ")
	if err != nil {
		return "", err
	}
	if password != confirm {
		return "", errors.New("passwords don't match")
	}
	return password, nil
}
