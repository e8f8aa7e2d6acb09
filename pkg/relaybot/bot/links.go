package bot

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/jholhewres/relaybot/pkg/relaybot/access"
	"github.com/jholhewres/relaybot/pkg/relaybot/channels"
	"github.com/jholhewres/relaybot/pkg/relaybot/limiter"
	"github.com/jholhewres/relaybot/pkg/relaybot/links"
	"github.com/jholhewres/relaybot/pkg/relaybot/mtproto"
	"github.com/jholhewres/relaybot/pkg/relaybot/relay"
)

func looksLikeTelegramLink(text string) bool {
	return strings.Contains(text, "t.me/") || strings.Contains(text, "telegram.me/") ||
		strings.Contains(text, "tg://openmessage")
}

func extractYouTube(text string) string {
	if raw := links.ExtractLink(text); raw != "" && links.IsYouTubeLink(raw) {
		return raw
	}
	return ""
}

// gate runs the checks shared by every relay entry point. It replies and
// returns false when the user may not continue.
func (b *Bot) gate(ctx context.Context, msg *channels.IncomingMessage) (limited bool, ok bool) {
	user := msg.From
	if b.deps.Tracker.Active(user) {
		b.reply(ctx, msg, textOngoing)
		return false, false
	}

	tier := b.deps.Access.CheckUser(ctx, user)
	verified := tier == access.TierFree && b.deps.Access.IsVerified(ctx, user)
	if tier == access.TierFree && !verified && !b.deps.Access.FreeServiceAvailable() {
		b.reply(ctx, msg, textFreeUnavailable)
		return false, false
	}

	limited = tier == access.TierFree && !verified
	if limited {
		left, err := b.deps.Cooldown.Remaining(ctx, user)
		if err != nil {
			b.logger.Warn("cooldown lookup failed", "user", user, "error", err)
		}
		if left > 0 {
			b.reply(ctx, msg, fmt.Sprintf(textCooldown, int(math.Ceil(left.Seconds()))))
			return limited, false
		}
	}
	return limited, true
}

// handleSingleLink relays one link sent as plain text.
func (b *Bot) handleSingleLink(ctx context.Context, msg *channels.IncomingMessage) {
	user := msg.From
	if !b.subscribed(ctx, msg) || b.deps.Batches.Active(user) {
		return
	}
	limited, ok := b.gate(ctx, msg)
	if !ok {
		return
	}

	raw := links.ExtractLink(msg.Content)
	if raw == "" {
		b.reply(ctx, msg, textNoLink)
		return
	}

	pctx, done, err := b.deps.Tracker.Begin(ctx, user)
	if err != nil {
		b.reply(ctx, msg, textOngoing)
		return
	}
	defer done()

	status := b.reply(ctx, msg, textProcessing)
	keep, err := b.processLink(pctx, msg.ChatID, user, raw, status)
	switch {
	case err != nil:
		if text := describeError(raw, err); text != "" {
			b.edit(ctx, msg.ChatID, status, text)
		} else {
			b.delete(ctx, msg.ChatID, status)
		}
		b.logger.Info("link failed", "user", user, "link", raw, "error", err)
	case !keep:
		b.delete(ctx, msg.ChatID, status)
	}

	if err == nil && limited {
		if err := b.deps.Cooldown.Set(ctx, user, b.cfg.Cooldown); err != nil {
			b.logger.Warn("set cooldown failed", "user", user, "error", err)
		}
	}
	b.sleep(pctx, b.cfg.LinkDelay)
}

// processLink relays raw or, for invite links, joins the chat. keep
// reports whether the status message now holds a result to leave visible.
func (b *Bot) processLink(ctx context.Context, chatID, user int64, raw string, status int) (keep bool, err error) {
	link, err := links.Parse(raw)
	if err != nil {
		return false, err
	}
	if link.Kind == links.KindInvite {
		b.edit(ctx, chatID, status, b.join(ctx, user, link.Hash))
		return true, nil
	}

	_, err = b.deps.Fetcher.Relay(ctx, relay.Request{
		UserID:      user,
		ChatID:      chatID,
		StatusMsgID: status,
		Link:        link,
		Settings:    b.settings(ctx, user),
	})
	return false, err
}

// describeError turns a relay failure into a chat message. Cancellation
// yields "" because /cancel already answered.
func describeError(raw string, err error) string {
	var loginErr *mtproto.LoginError
	switch {
	case errors.Is(err, context.Canceled):
		return ""
	case errors.Is(err, mtproto.ErrNoSession), errors.Is(err, mtproto.ErrNotAuthorized):
		return textNoSession
	case errors.Is(err, relay.ErrMessageNotFound):
		return textNotFound
	case errors.Is(err, relay.ErrEmptyMessage):
		return textEmpty
	case errors.Is(err, links.ErrInvalidLink):
		return textInvalidLink
	case errors.As(err, &loginErr):
		return textNoSession
	}
	if wait, ok := relay.IsFloodWait(err); ok {
		return fmt.Sprintf(textFloodWait, int(wait.Seconds()))
	}
	return fmt.Sprintf(textLinkError, raw, err)
}

// join makes the user's session join an invite and returns the outcome.
func (b *Bot) join(ctx context.Context, user int64, hash string) string {
	err := b.deps.Fetcher.Join(ctx, user, hash)
	if err == nil {
		return textJoined
	}

	var je *mtproto.JoinError
	switch {
	case errors.Is(err, mtproto.ErrNoSession), errors.Is(err, mtproto.ErrNotAuthorized):
		return textNoSession
	case errors.As(err, &je):
		switch je.Kind {
		case mtproto.JoinAlreadyMember:
			return textAlreadyMember
		case mtproto.JoinInvalidInvite:
			return textJoinInvalid
		case mtproto.JoinRequestSent:
			return textJoinRequested
		case mtproto.JoinFloodWait:
			return fmt.Sprintf(textFloodWait, int(je.Wait.Seconds()))
		}
	}
	b.logger.Error("join failed", "user", user, "error", err)
	return textJoinFailed
}

func (b *Bot) handleJoin(ctx context.Context, msg *channels.IncomingMessage) {
	if !b.subscribed(ctx, msg) {
		return
	}
	hash, ok := links.InviteHash(links.ExtractLink(msg.Args))
	if !ok {
		b.reply(ctx, msg, textJoinUsage)
		return
	}
	b.reply(ctx, msg, b.join(ctx, msg.From, hash))
}

func (b *Bot) handleCancel(ctx context.Context, msg *channels.IncomingMessage) {
	cancelled := b.deps.Tracker.Cancel(msg.From)
	if b.deps.Batches.Discard(msg.From) {
		cancelled = true
	}
	if cancelled {
		b.reply(ctx, msg, textCancelled)
	} else {
		b.reply(ctx, msg, textNothingToCancel)
	}
}

func (b *Bot) handleBatch(ctx context.Context, msg *channels.IncomingMessage) {
	if !b.subscribed(ctx, msg) {
		return
	}
	if b.deps.Batches.Toggle(msg.From) {
		b.reply(ctx, msg, textBatchOn)
	} else {
		b.reply(ctx, msg, textBatchOff)
	}
}

func (b *Bot) addToBatch(ctx context.Context, msg *channels.IncomingMessage) {
	raw := links.ExtractLink(msg.Content)
	if raw == "" {
		b.reply(ctx, msg, textNoLink)
		return
	}

	tier := b.deps.Access.CheckUser(ctx, msg.From)
	if tier == access.TierFree && !b.deps.Access.FreeServiceAvailable() && !b.deps.Access.IsVerified(ctx, msg.From) {
		b.reply(ctx, msg, textFreeUnavailable)
		return
	}

	limit := b.deps.Access.BatchLimit(tier)
	switch _, err := b.deps.Batches.Add(msg.From, raw, limit); {
	case errors.Is(err, limiter.ErrBatchFull):
		b.reply(ctx, msg, fmt.Sprintf(textBatchFull, limit))
	case err != nil:
		b.reply(ctx, msg, textNoBatch)
	default:
		b.reply(ctx, msg, textBatchAdded)
	}
}

// handleDone processes the collected batch one link at a time.
func (b *Bot) handleDone(ctx context.Context, msg *channels.IncomingMessage) {
	user := msg.From
	if b.deps.Tracker.Active(user) {
		b.reply(ctx, msg, textOngoing)
		return
	}
	batch, ok := b.deps.Batches.Drain(user)
	if !ok {
		b.reply(ctx, msg, textNoBatch)
		return
	}
	if len(batch) == 0 {
		b.reply(ctx, msg, textNoLinks)
		return
	}

	pctx, done, err := b.deps.Tracker.Begin(ctx, user)
	if err != nil {
		b.reply(ctx, msg, textOngoing)
		return
	}
	defer done()

	status := b.reply(ctx, msg, textBatchStart)
	defer b.delete(ctx, msg.ChatID, status)

	b.logger.Info("batch started", "user", user, "links", len(batch))
	failed := 0
	for i, raw := range batch {
		if pctx.Err() != nil {
			break
		}
		if _, err := b.processLink(pctx, msg.ChatID, user, raw, status); err != nil {
			if errors.Is(err, context.Canceled) {
				break
			}
			failed++
			b.reply(ctx, msg, fmt.Sprintf(textBatchLinkFail, raw, err))
		}
		if i < len(batch)-1 {
			if err := b.sleep(pctx, b.cfg.BatchDelay); err != nil {
				break
			}
		}
	}
	b.logger.Info("batch finished", "user", user, "links", len(batch), "failed", failed)
}
