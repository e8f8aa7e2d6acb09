package bot

import (
	"context"

	"github.com/jholhewres/relaybot/pkg/relaybot/channels"
	"github.com/jholhewres/relaybot/pkg/relaybot/mtproto"
	"github.com/jholhewres/relaybot/pkg/relaybot/relay"
)

// UserbotFetcher relays links through the requesting user's userbot.
type UserbotFetcher struct {
	userbots *mtproto.Userbots
	pipeline *relay.Pipeline
}

// NewUserbotFetcher creates a fetcher.
func NewUserbotFetcher(userbots *mtproto.Userbots, pipeline *relay.Pipeline) *UserbotFetcher {
	return &UserbotFetcher{userbots: userbots, pipeline: pipeline}
}

// Relay connects the user's client and runs the pipeline on it.
func (f *UserbotFetcher) Relay(ctx context.Context, req relay.Request) (*relay.Result, error) {
	var res *relay.Result
	err := f.userbots.Run(ctx, req.UserID, func(ctx context.Context, ub *mtproto.Userbot) error {
		r, err := f.pipeline.Process(ctx, ub, req)
		res = r
		return err
	})
	return res, err
}

// Join imports an invite with the user's client.
func (f *UserbotFetcher) Join(ctx context.Context, userID int64, hash string) error {
	return f.userbots.Run(ctx, userID, func(ctx context.Context, ub *mtproto.Userbot) error {
		return ub.Join(ctx, hash)
	})
}

// Logout ends the user's own session on the server. The shared default
// session is never logged out.
func (f *UserbotFetcher) Logout(ctx context.Context, userID int64) error {
	return f.userbots.Run(ctx, userID, func(ctx context.Context, ub *mtproto.Userbot) error {
		if ub.OwnSession() {
			ub.Logout(ctx)
		}
		return nil
	})
}

// ChatNotifier shows relay status through the bot's chat channel.
type ChatNotifier struct {
	m Messenger
}

// NewChatNotifier adapts m to relay.Notifier.
func NewChatNotifier(m Messenger) *ChatNotifier {
	return &ChatNotifier{m: m}
}

func (n *ChatNotifier) Notify(ctx context.Context, chatID int64, text string) (int, error) {
	return n.m.Send(ctx, chatID, channels.Text(text))
}

func (n *ChatNotifier) Edit(ctx context.Context, chatID int64, msgID int, text string) error {
	return n.m.Edit(ctx, chatID, msgID, text)
}

func (n *ChatNotifier) Delete(ctx context.Context, chatID int64, msgID int) error {
	return n.m.Delete(ctx, chatID, msgID)
}

var (
	_ Fetcher        = (*UserbotFetcher)(nil)
	_ Uploader       = (*relay.Pipeline)(nil)
	_ relay.Notifier = (*ChatNotifier)(nil)
)
