package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jholhewres/relaybot/pkg/relaybot/access"
	"github.com/jholhewres/relaybot/pkg/relaybot/channels"
	"github.com/jholhewres/relaybot/pkg/relaybot/database"
)

func (b *Bot) handleSettings(ctx context.Context, msg *channels.IncomingMessage) {
	st := b.settings(ctx, msg.From)
	chat, caption, rename, clean := textNotSet, textNotSet, textNotSet, textNotSet
	if st.ChatID != 0 {
		chat = fmt.Sprintf("`%d`", st.ChatID)
	}
	if st.Caption != "" {
		caption = st.Caption
	}
	if st.RenameTag != "" {
		rename = st.RenameTag
	}
	if len(st.CleanWords) > 0 {
		clean = strings.Join(st.CleanWords, ", ")
	}
	b.reply(ctx, msg, fmt.Sprintf(textSettings, chat, caption, rename, clean))
}

// updateSettings loads, mutates and saves the user's settings. It replies
// with ok on success.
func (b *Bot) updateSettings(ctx context.Context, msg *channels.IncomingMessage, ok string, fn func(*database.Settings)) {
	st := b.settings(ctx, msg.From)
	st.UserID = msg.From
	fn(&st)
	if err := b.deps.Store.SaveSettings(ctx, st); err != nil {
		b.logger.Error("save settings failed", "user", msg.From, "error", err)
		b.reply(ctx, msg, textStoreFailed)
		return
	}
	b.reply(ctx, msg, ok)
}

func (b *Bot) handleSetChat(ctx context.Context, msg *channels.IncomingMessage) {
	id, err := strconv.ParseInt(strings.TrimSpace(msg.Args), 10, 64)
	if err != nil {
		b.reply(ctx, msg, textSetChatBad)
		return
	}
	b.updateSettings(ctx, msg, fmt.Sprintf(textSetChatOK, id), func(st *database.Settings) {
		st.ChatID = id
	})
}

func (b *Bot) handleSetCaption(ctx context.Context, msg *channels.IncomingMessage) {
	caption := strings.TrimSpace(msg.Args)
	ok := textCaptionOK
	if caption == "" {
		ok = textCaptionOff
	}
	b.updateSettings(ctx, msg, ok, func(st *database.Settings) { st.Caption = caption })
}

func (b *Bot) handleSetRename(ctx context.Context, msg *channels.IncomingMessage) {
	tag := strings.TrimSpace(msg.Args)
	ok := textRenameOK
	if tag == "" {
		ok = textRenameOff
	}
	b.updateSettings(ctx, msg, ok, func(st *database.Settings) { st.RenameTag = tag })
}

func (b *Bot) handleSetClean(ctx context.Context, msg *channels.IncomingMessage) {
	words := strings.Fields(msg.Args)
	ok := textCleanOff
	if len(words) > 0 {
		ok = fmt.Sprintf(textCleanOK, len(words))
	}
	b.updateSettings(ctx, msg, ok, func(st *database.Settings) { st.CleanWords = words })
}

func (b *Bot) handleReset(ctx context.Context, msg *channels.IncomingMessage) {
	if err := b.deps.Store.ResetSettings(ctx, msg.From); err != nil {
		b.logger.Error("reset settings failed", "user", msg.From, "error", err)
		b.reply(ctx, msg, textStoreFailed)
		return
	}
	b.reply(ctx, msg, textResetOK)
}

func (b *Bot) handleMyPlan(ctx context.Context, msg *channels.IncomingMessage) {
	plan, err := b.deps.Access.Plan(ctx, msg.From)
	if err != nil {
		b.logger.Warn("plan lookup failed", "user", msg.From, "error", err)
	}

	var text string
	switch {
	case plan.Owner:
		text = textPlanOwner
	case plan.Tier == access.TierPremium:
		text = fmt.Sprintf(textPlanPremium, formatTime(plan.ExpiresAt), formatLeft(time.Until(plan.ExpiresAt)))
	default:
		text = fmt.Sprintf(textPlanFree, b.deps.Access.BatchLimit(access.TierFree), formatLeft(b.cfg.Cooldown))
	}
	if !plan.Owner && !plan.PassUntil.IsZero() {
		text += fmt.Sprintf(textPlanPass, formatTime(plan.PassUntil))
	}
	b.reply(ctx, msg, text)
}

// handleTransfer moves the sender's remaining premium time to another user.
func (b *Bot) handleTransfer(ctx context.Context, msg *channels.IncomingMessage) {
	to, err := strconv.ParseInt(strings.TrimSpace(msg.Args), 10, 64)
	if err != nil || to == 0 {
		b.reply(ctx, msg, textTransferUsage)
		return
	}
	if to == msg.From {
		b.reply(ctx, msg, textTransferSelf)
		return
	}

	expires, err := b.deps.Access.Transfer(ctx, msg.From, to)
	switch {
	case errors.Is(err, access.ErrNoPlan):
		b.reply(ctx, msg, textTransferNone)
		return
	case err != nil:
		b.logger.Error("transfer failed", "from", msg.From, "to", to, "error", err)
		b.reply(ctx, msg, textStoreFailed)
		return
	}
	b.reply(ctx, msg, fmt.Sprintf(textTransferOK, to, formatTime(expires)))
	b.send(ctx, to, fmt.Sprintf(textTransferGot, msg.From, formatTime(expires)))
}
