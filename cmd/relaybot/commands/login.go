package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/jholhewres/relaybot/pkg/relaybot/config"
	"github.com/jholhewres/relaybot/pkg/relaybot/mtproto"
)

// newLoginCmd creates `relaybot login`, a terminal alternative to /login.
func newLoginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log a Telegram account in from the terminal",
		Long: `Sign a Telegram account in with phone number, login code and optional
two-step password. The session is stored for the given bot user, or
printed as a session string with --print (for telegram.default_session).

Examples:
  relaybot login --user 123456789
  relaybot login --phone +15551234567 --print`,
		RunE: runLogin,
	}
	cmd.Flags().Int64("user", 0, "bot user ID to store the session for (default: the account's own ID)")
	cmd.Flags().String("phone", "", "phone number with country code")
	cmd.Flags().Bool("print", false, "print the session string instead of storing it")
	return cmd
}

func runLogin(cmd *cobra.Command, _ []string) error {
	logger := cliLogger(cmd)
	cfg, _, err := resolveConfig(cmd, logger)
	if err != nil {
		return err
	}
	if cfg.Telegram.APIID == 0 || cfg.Telegram.APIHash == "" {
		return errors.New("telegram.api_id and telegram.api_hash are required")
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "Phone number: ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return err
	}
	defer rl.Close()

	ctx := cmd.Context()
	phone, _ := cmd.Flags().GetString("phone")
	if phone == "" {
		if phone, err = readLine(rl, "Phone number: "); err != nil {
			return err
		}
	}

	res, err := mtproto.Login(ctx, cfg.MTProtoConfig(), phone, &terminalPrompter{rl: rl})
	if err != nil {
		return err
	}
	fmt.Printf("Logged in as %s (%d)\n", displayName(res), res.UserID)

	if printOnly, _ := cmd.Flags().GetBool("print"); printOnly {
		fmt.Println()
		fmt.Println(mtproto.EncodeString(res.Session))
		fmt.Println()
		fmt.Println("Keep this string secret: it grants full access to the account.")
		return nil
	}

	userID, _ := cmd.Flags().GetInt64("user")
	if userID == 0 {
		userID = res.UserID
	}
	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.SaveSession(ctx, userID, res.Phone, res.Session); err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	fmt.Printf("Session stored for user %d\n", userID)
	return nil
}

// terminalPrompter answers login questions on the terminal.
type terminalPrompter struct {
	rl *readline.Instance
}

func (p *terminalPrompter) Code(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	code, err := readLine(p.rl, "Login code: ")
	if err != nil {
		return "", err
	}
	return strings.Join(strings.Fields(code), ""), nil
}

func (p *terminalPrompter) Password(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return config.ReadPassword("Two-step verification password: ")
}

// readLine reads one non-empty line. ^C and EOF cancel.
func readLine(rl *readline.Instance, prompt string) (string, error) {
	rl.SetPrompt(prompt)
	for {
		line, err := rl.Readline()
		switch {
		case errors.Is(err, readline.ErrInterrupt), errors.Is(err, io.EOF):
			return "", context.Canceled
		case err != nil:
			return "", err
		}
		if line = strings.TrimSpace(line); line != "" {
			return line, nil
		}
	}
}

func displayName(res *mtproto.LoginResult) string {
	if res.Username != "" {
		return "@" + res.Username
	}
	return res.Phone
}
