package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jholhewres/relaybot/pkg/relaybot/channels"
	"github.com/jholhewres/relaybot/pkg/relaybot/database"
	"github.com/jholhewres/relaybot/pkg/relaybot/mtproto"
)

// chatPrompter asks for the login code and password in the user's chat.
type chatPrompter struct {
	bot    *Bot
	chatID int64
}

// Code reads the OTP. Users type it spaced out ("1 2 3 4 5"); Telegram
// expires codes that are sent back verbatim.
func (p *chatPrompter) Code(ctx context.Context) (string, error) {
	text, err := p.bot.ask(ctx, p.chatID, textAskOTP, p.bot.cfg.CodeTimeout)
	if err != nil {
		return "", err
	}
	return strings.Join(strings.Fields(text), ""), nil
}

func (p *chatPrompter) Password(ctx context.Context) (string, error) {
	return p.bot.ask(ctx, p.chatID, textAsk2FA, p.bot.cfg.PasswordTimeout)
}

func (b *Bot) handleLogin(ctx context.Context, msg *channels.IncomingMessage) {
	if !b.subscribed(ctx, msg) {
		return
	}
	if b.deps.Login == nil {
		b.reply(ctx, msg, textLoginFailed)
		return
	}

	phone, err := b.ask(ctx, msg.ChatID, textAskPhone, b.cfg.PhoneTimeout)
	if err != nil {
		b.reply(ctx, msg, loginPromptText(err, textOTPTimeout))
		return
	}

	b.reply(ctx, msg, textSendingOTP)
	res, err := b.deps.Login(ctx, phone, &chatPrompter{bot: b, chatID: msg.ChatID})
	if err != nil {
		b.logger.Info("login failed", "user", msg.From, "error", err)
		b.reply(ctx, msg, loginErrorText(err))
		return
	}

	if err := b.deps.Store.SaveSession(ctx, msg.From, res.Phone, res.Session); err != nil {
		b.logger.Error("save session failed", "user", msg.From, "error", err)
		b.reply(ctx, msg, textLoginFailed)
		return
	}
	b.stat(ctx, database.StatLogins)
	b.logger.Info("user logged in", "user", msg.From, "account", res.UserID)
	b.reply(ctx, msg, textLoginOK)
}

// loginPromptText describes a failed question. timeoutText differs by step.
func loginPromptText(err error, timeoutText string) string {
	switch {
	case errors.Is(err, ErrConversationTimeout):
		return timeoutText
	case errors.Is(err, ErrConversationCancelled), errors.Is(err, context.Canceled):
		return textLoginCancel
	default:
		return textLoginFailed
	}
}

func loginErrorText(err error) string {
	var pe *mtproto.PromptError
	if errors.As(err, &pe) {
		if pe.Step == "password" {
			return loginPromptText(pe.Err, text2FATimeout)
		}
		return loginPromptText(pe.Err, textOTPTimeout)
	}

	var le *mtproto.LoginError
	if !errors.As(err, &le) {
		return loginPromptText(err, textOTPTimeout)
	}
	switch le.Kind {
	case mtproto.LoginInvalidAPI:
		return textBadAPI
	case mtproto.LoginInvalidPhone:
		return textBadPhone
	case mtproto.LoginInvalidCode:
		return textBadOTP
	case mtproto.LoginCodeExpired:
		return textOTPExpired
	case mtproto.LoginInvalidPassword:
		return textBadPassword
	case mtproto.LoginFloodWait:
		return fmt.Sprintf(textLoginFlood, int(le.Wait/time.Second))
	case mtproto.LoginSignUpRequired:
		return textSignUp
	}
	return textLoginFailed
}

// handleLogout terminates the user's own session and deletes it.
func (b *Bot) handleLogout(ctx context.Context, msg *channels.IncomingMessage) {
	has, err := b.deps.Store.HasSession(ctx, msg.From)
	if err != nil {
		b.logger.Error("session lookup failed", "user", msg.From, "error", err)
	}
	if has && b.deps.Fetcher != nil {
		if err := b.deps.Fetcher.Logout(ctx, msg.From); err != nil {
			b.logger.Info("remote logout failed", "user", msg.From, "error", err)
		}
	}

	deleted, err := b.deps.Store.DeleteSession(ctx, msg.From)
	if err != nil {
		b.logger.Error("delete session failed", "user", msg.From, "error", err)
	}
	if deleted {
		b.reply(ctx, msg, textLoggedOut)
	} else {
		b.reply(ctx, msg, textLoggedOutNone)
	}
}
