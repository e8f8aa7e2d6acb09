package mtproto

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/tg"
)

// Userbots starts short-lived user clients on demand.
type Userbots struct {
	cfg            Config
	store          SessionStore
	notFound       func(error) bool
	defaultSession []byte
	logger         *slog.Logger
}

// NewUserbots creates a pool. defaultSession is a session string used for
// users who never logged in; empty disables the fallback.
func NewUserbots(cfg Config, store SessionStore, notFound func(error) bool, defaultSession string, logger *slog.Logger) (*Userbots, error) {
	if logger == nil {
		logger = slog.Default()
	}
	u := &Userbots{
		cfg:      cfg.withDefaults(),
		store:    store,
		notFound: notFound,
		logger:   logger.With("component", "userbots"),
	}
	if defaultSession != "" {
		data, err := DecodeString(defaultSession)
		if err != nil {
			return nil, fmt.Errorf("default session: %w", err)
		}
		u.defaultSession = data
	}
	return u, nil
}

// HasDefault reports whether a fallback session is configured.
func (u *Userbots) HasDefault() bool { return len(u.defaultSession) > 0 }

func (u *Userbots) storageFor(ctx context.Context, userID int64) (session.Storage, bool, error) {
	data, err := u.store.LoadSession(ctx, userID)
	switch {
	case err == nil && len(data) > 0:
		return NewDBStorage(u.store, userID, "", u.notFound), true, nil
	case err != nil && (u.notFound == nil || !u.notFound(err)):
		return nil, false, fmt.Errorf("load session: %w", err)
	}
	if u.HasDefault() {
		return NewMemoryStorage(u.defaultSession), false, nil
	}
	return nil, false, ErrNoSession
}

// Run connects the user's client (or the default one), runs fn and
// disconnects.
func (u *Userbots) Run(ctx context.Context, userID int64, fn func(ctx context.Context, ub *Userbot) error) error {
	storage, own, err := u.storageFor(ctx, userID)
	if err != nil {
		return err
	}

	client := NewClient(u.cfg, storage, nil)
	return client.Run(ctx, func(ctx context.Context) error {
		status, err := client.Auth().Status(ctx)
		if err != nil {
			return fmt.Errorf("auth status: %w", err)
		}
		if !status.Authorized {
			return ErrNotAuthorized
		}
		u.logger.Debug("userbot connected", "user", userID, "own_session", own)
		return fn(ctx, &Userbot{
			client: client,
			api:    client.API(),
			cfg:    u.cfg,
			own:    own,
			logger: u.logger.With("user", userID),
		})
	})
}

// Userbot is a connected user client.
type Userbot struct {
	client *telegram.Client
	api    *tg.Client
	cfg    Config
	own    bool
	logger *slog.Logger
}

// OwnSession reports whether the client runs on the user's own session
// rather than the default one.
func (b *Userbot) OwnSession() bool { return b.own }

// API returns the raw API client.
func (b *Userbot) API() *tg.Client { return b.api }

// Join imports a chat invite.
func (b *Userbot) Join(ctx context.Context, hash string) error {
	if _, err := b.api.MessagesImportChatInvite(ctx, hash); err != nil {
		return classifyJoin(err)
	}
	return nil
}

// Logout terminates the session on the server. Errors are logged only.
func (b *Userbot) Logout(ctx context.Context) {
	if _, err := b.api.AuthLogOut(ctx); err != nil {
		b.logger.Debug("logout failed", "error", err)
	}
}
