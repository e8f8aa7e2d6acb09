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
	"github.com/jholhewres/relaybot/pkg/relaybot/progress"
)

// parseTarget reads "<user id> [n unit]". d is 0 when no duration is given.
func parseTarget(args string) (id int64, d time.Duration, err error) {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		return 0, 0, errors.New("missing user id")
	}
	id, err = strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid user id %q", fields[0])
	}
	if len(fields) > 1 {
		d, err = access.ParseDuration(strings.Join(fields[1:], " "))
	}
	return id, d, err
}

func (b *Bot) handleAdd(ctx context.Context, msg *channels.IncomingMessage) {
	id, d, err := parseTarget(msg.Args)
	if err != nil {
		if id == 0 {
			b.reply(ctx, msg, textAddUsage)
		} else {
			b.reply(ctx, msg, fmt.Sprintf(textBadDuration, err))
		}
		return
	}
	if d == 0 {
		d = b.cfg.DefaultPremium
	}

	expires, err := b.deps.Access.AddPremium(ctx, id, d, msg.From)
	if err != nil {
		b.logger.Error("add premium failed", "user", id, "error", err)
		b.reply(ctx, msg, textStoreFailed)
		return
	}
	b.reply(ctx, msg, fmt.Sprintf(textAddOK, id, formatTime(expires)))
	b.send(ctx, id, fmt.Sprintf(textAddNotice, formatTime(expires)))
}

func (b *Bot) handleRem(ctx context.Context, msg *channels.IncomingMessage) {
	id, _, err := parseTarget(msg.Args)
	if err != nil && id == 0 {
		b.reply(ctx, msg, textRemUsage)
		return
	}
	switch err := b.deps.Access.RemovePremium(ctx, id); {
	case errors.Is(err, access.ErrNoPlan):
		b.reply(ctx, msg, fmt.Sprintf(textRemNone, id))
	case err != nil:
		b.logger.Error("remove premium failed", "user", id, "error", err)
		b.reply(ctx, msg, textStoreFailed)
	default:
		b.reply(ctx, msg, fmt.Sprintf(textRemOK, id))
	}
}

func (b *Bot) handleFreePass(ctx context.Context, msg *channels.IncomingMessage) {
	id, d, err := parseTarget(msg.Args)
	if err != nil {
		if id == 0 {
			b.reply(ctx, msg, textPassUsage)
		} else {
			b.reply(ctx, msg, fmt.Sprintf(textBadDuration, err))
		}
		return
	}

	until, err := b.deps.Access.GrantPass(ctx, id, d)
	if err != nil {
		b.logger.Error("grant pass failed", "user", id, "error", err)
		b.reply(ctx, msg, textStoreFailed)
		return
	}
	if err := b.deps.Cooldown.Clear(ctx, id); err != nil {
		b.logger.Debug("clear cooldown failed", "user", id, "error", err)
	}
	b.reply(ctx, msg, fmt.Sprintf(textPassOK, id, formatTime(until)))
	b.send(ctx, id, fmt.Sprintf(textPassNotice, formatTime(until)))
}

func (b *Bot) handleStats(ctx context.Context, msg *channels.IncomingMessage) {
	users, err := b.deps.Store.CountUsers(ctx)
	if err != nil {
		b.logger.Warn("count users failed", "error", err)
	}
	premium, err := b.deps.Store.ListPremium(ctx)
	if err != nil {
		b.logger.Warn("list premium failed", "error", err)
	}
	active := 0
	for _, p := range premium {
		if p.ExpiresAt.After(time.Now()) {
			active++
		}
	}
	stats, err := b.deps.Store.Stats(ctx)
	if err != nil {
		b.logger.Warn("load stats failed", "error", err)
	}

	b.reply(ctx, msg, fmt.Sprintf(textStats,
		users,
		active,
		stats[database.StatMessages],
		progress.HumanBytes(float64(stats[database.StatBytes])),
		stats[database.StatYouTube],
		stats[database.StatLogins],
		b.deps.Tracker.Count(),
	))
}

// handleBroadcast sends the argument text to every known user, pacing
// sends to stay under Telegram's bot limits.
func (b *Bot) handleBroadcast(ctx context.Context, msg *channels.IncomingMessage) {
	text := strings.TrimSpace(msg.Args)
	if text == "" {
		b.reply(ctx, msg, textBroadcastUse)
		return
	}
	users, err := b.deps.Store.ListUsers(ctx)
	if err != nil {
		b.logger.Error("list users failed", "error", err)
		b.reply(ctx, msg, textStoreFailed)
		return
	}

	status := b.reply(ctx, msg, fmt.Sprintf(textBroadcastRun, len(users)))
	sent, failed := 0, 0
	for _, id := range users {
		if _, err := b.deps.Messenger.Send(ctx, id, channels.Text(text)); err != nil {
			failed++
			b.logger.Debug("broadcast send failed", "user", id, "error", err)
		} else {
			sent++
		}
		if err := b.sleep(ctx, b.cfg.BroadcastDelay); err != nil {
			break
		}
	}
	b.logger.Info("broadcast finished", "sent", sent, "failed", failed)
	b.edit(ctx, msg.ChatID, status, fmt.Sprintf(textBroadcastEnd, sent, failed))
}

// NotifyExpired tells a user their plan ran out.
func (b *Bot) NotifyExpired(ctx context.Context, userID int64) {
	b.send(ctx, userID, textExpired)
}
