package bot

import (
	"context"
	"fmt"

	"github.com/jholhewres/relaybot/pkg/relaybot/channels"
)

// subscribed enforces force-subscribe. It replies and returns false when
// the user may not continue.
func (b *Bot) subscribed(ctx context.Context, msg *channels.IncomingMessage) bool {
	chID := b.cfg.ForceSub.ChannelID
	if chID == 0 || b.deps.Membership == nil || b.deps.Access.IsOwner(msg.From) {
		return true
	}

	link, err := b.deps.Membership.InviteLink(ctx, chID)
	if err != nil || link == "" {
		// Without an invite link there is nothing to send the user to.
		b.logger.Warn("force-sub invite link unavailable", "channel", chID, "error", err)
		return true
	}

	status, err := b.deps.Membership.MemberStatus(ctx, chID, msg.From)
	if err != nil {
		b.logger.Error("force-sub check failed", "user", msg.From, "error", err)
		b.reply(ctx, msg, fmt.Sprintf(textSubscribeFail, b.cfg.ForceSub.Contact))
		return false
	}

	switch {
	case status == channels.StatusKicked:
		b.reply(ctx, msg, fmt.Sprintf(textBanned, b.cfg.ForceSub.Contact))
		return false
	case !status.IsMember():
		_, err := b.deps.Messenger.Send(ctx, msg.ChatID, &channels.OutgoingMessage{
			Content: textJoinChannel,
			Photo:   b.cfg.ForceSub.Photo,
			Buttons: []channels.Button{{Text: textJoinButton, URL: link}},
		})
		if err != nil {
			b.logger.Warn("join prompt failed", "error", err)
		}
		return false
	}
	return true
}
