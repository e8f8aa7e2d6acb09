package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/jholhewres/relaybot/pkg/relaybot/links"
	"github.com/jholhewres/relaybot/pkg/relaybot/media"
	"github.com/jholhewres/relaybot/pkg/relaybot/mtproto"
	"github.com/jholhewres/relaybot/pkg/relaybot/relay"
)

// newFetchCmd creates `relaybot fetch`, which saves a linked message locally.
func newFetchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch <link>",
		Short: "Download a Telegram message to a local file",
		Long: `Resolve a t.me link with a stored session and save its file (or text)
to a local directory. Useful to check that a session can reach a chat.

Examples:
  relaybot fetch https://t.me/c/1234567890/42 --user 123456789
  relaybot fetch https://t.me/somechannel/7 --out ./downloads`,
		Args: cobra.ExactArgs(1),
		RunE: runFetch,
	}
	cmd.Flags().Int64("user", 0, "bot user whose session is used (default: telegram.default_session)")
	cmd.Flags().String("out", ".", "output directory")
	return cmd
}

func runFetch(cmd *cobra.Command, args []string) error {
	link, err := links.Parse(args[0])
	if err != nil {
		return err
	}
	if !link.IsMessage() {
		return fmt.Errorf("%s is not a message link", args[0])
	}

	cfg, store, err := openCLIStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	userID, _ := cmd.Flags().GetInt64("user")
	outDir, _ := cmd.Flags().GetString("out")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}

	userbots, err := mtproto.NewUserbots(cfg.MTProtoConfig(), store, isNotFound, cfg.Telegram.DefaultSession, cliLogger(cmd))
	if err != nil {
		return err
	}

	return userbots.Run(cmd.Context(), userID, func(ctx context.Context, ub *mtproto.Userbot) error {
		msg, err := ub.Message(ctx, link)
		if err != nil {
			return err
		}
		if !msg.HasFile() {
			if msg.Text == "" {
				return relay.ErrEmptyMessage
			}
			dst := filepath.Join(outDir, "message-"+strconv.Itoa(msg.ID)+".txt")
			if err := os.WriteFile(dst, []byte(msg.Text), 0o644); err != nil {
				return err
			}
			fmt.Println(dst)
			return nil
		}

		name := media.SanitizeFilename(msg.FileName)
		if name == "" {
			name = "file-" + strconv.Itoa(msg.ID) + media.ExtFromMIME(msg.MIME)
		}
		bar := progressbar.DefaultBytes(msg.Size, name)
		dst, err := ub.Download(ctx, msg, filepath.Join(outDir, name), func(current, _ int64) {
			_ = bar.Set64(current)
		})
		_ = bar.Finish()
		if err != nil {
			return err
		}
		fmt.Println(dst)
		return nil
	})
}
