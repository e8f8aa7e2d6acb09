// Package bot implements the chat side of relaybot: command routing,
// conversations (login), force-subscribe, link handling and the owner
// commands. It talks to Telegram through a Messenger and relays content
// through a Fetcher.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/jholhewres/relaybot/pkg/relaybot/access"
	"github.com/jholhewres/relaybot/pkg/relaybot/channels"
	"github.com/jholhewres/relaybot/pkg/relaybot/database"
	"github.com/jholhewres/relaybot/pkg/relaybot/limiter"
	"github.com/jholhewres/relaybot/pkg/relaybot/media"
	"github.com/jholhewres/relaybot/pkg/relaybot/mtproto"
	"github.com/jholhewres/relaybot/pkg/relaybot/relay"
	"github.com/jholhewres/relaybot/pkg/relaybot/youtube"
)

// Messenger is the chat surface the bot replies through.
type Messenger interface {
	Send(ctx context.Context, chatID int64, msg *channels.OutgoingMessage) (int, error)
	Edit(ctx context.Context, chatID int64, messageID int, text string) error
	Delete(ctx context.Context, chatID int64, messageID int) error
	Receive() <-chan *channels.IncomingMessage
}

// Store is the persistence the handlers use.
type Store interface {
	HasSession(ctx context.Context, userID int64) (bool, error)
	SaveSession(ctx context.Context, userID int64, phone string, session []byte) error
	DeleteSession(ctx context.Context, userID int64) (bool, error)
	GetSettings(ctx context.Context, userID int64) (database.Settings, error)
	SaveSettings(ctx context.Context, st database.Settings) error
	ResetSettings(ctx context.Context, userID int64) error
	TouchUser(ctx context.Context, userID int64) error
	ListUsers(ctx context.Context) ([]int64, error)
	CountUsers(ctx context.Context) (int64, error)
	ListPremium(ctx context.Context) ([]database.PremiumUser, error)
	IncrStat(ctx context.Context, key string, delta int64) error
	Stats(ctx context.Context) (map[string]int64, error)
}

// Fetcher relays links through a user client.
type Fetcher interface {
	Relay(ctx context.Context, req relay.Request) (*relay.Result, error)
	Join(ctx context.Context, userID int64, hash string) error
	Logout(ctx context.Context, userID int64) error
}

// Uploader sends a local file, splitting it when needed.
type Uploader interface {
	Upload(ctx context.Context, req relay.Request, out relay.OutgoingFile, size int64) (int, error)
}

// VideoDownloader fetches YouTube videos.
type VideoDownloader interface {
	Download(ctx context.Context, url string, opts youtube.Options) (*youtube.Video, error)
}

// LoginFunc signs a phone number in.
type LoginFunc func(ctx context.Context, phone string, p mtproto.Prompter) (*mtproto.LoginResult, error)

// ForceSubConfig makes users join a channel before using the bot.
type ForceSubConfig struct {
	// ChannelID is the channel to join. 0 disables the check.
	ChannelID int64 `yaml:"channel_id"`

	// Photo is sent with the join prompt.
	Photo string `yaml:"photo"`

	// Contact is shown to banned users and on errors.
	Contact string `yaml:"contact"`
}

// Config holds bot behaviour settings.
type Config struct {
	ForceSub ForceSubConfig `yaml:"force_sub"`

	// Cooldown is the wait between links for free users.
	Cooldown time.Duration `yaml:"cooldown"`

	// LinkDelay is slept after each single link before the next one is accepted.
	LinkDelay time.Duration `yaml:"link_delay"`

	// BatchDelay is slept between links of a batch.
	BatchDelay time.Duration `yaml:"batch_delay"`

	// PhoneTimeout, CodeTimeout and PasswordTimeout bound the login questions.
	PhoneTimeout    time.Duration `yaml:"phone_timeout"`
	CodeTimeout     time.Duration `yaml:"code_timeout"`
	PasswordTimeout time.Duration `yaml:"password_timeout"`

	// DefaultPremium is the plan length of /add without a duration.
	DefaultPremium time.Duration `yaml:"default_premium"`

	// BroadcastDelay is slept between broadcast messages.
	BroadcastDelay time.Duration `yaml:"broadcast_delay"`

	// YouTubeMaxDuration and YouTubeSizeLimit are shown to free users
	// whose download was refused.
	YouTubeMaxDuration time.Duration `yaml:"youtube_max_duration"`
	YouTubeSizeLimit   int64         `yaml:"youtube_size_limit"`
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		ForceSub: ForceSubConfig{
			Photo:   "https://graph.org/file/94027ad785c6ba022fcd0-1d4e0c2f339471ce84.jpg",
			Contact: "Team SPY",
		},
		Cooldown:        limiter.DefaultCooldown,
		LinkDelay:       15 * time.Second,
		BatchDelay:      2 * time.Second,
		PhoneTimeout:    10 * time.Minute,
		CodeTimeout:     10 * time.Minute,
		PasswordTimeout: 5 * time.Minute,
		DefaultPremium:  30 * 24 * time.Hour,
		BroadcastDelay:  50 * time.Millisecond,

		YouTubeMaxDuration: 3 * time.Hour,
		YouTubeSizeLimit:   media.SizeLimit,
	}
}

// Deps are the collaborators of the bot. Membership, Videos, Uploader and
// Login may be nil; the matching features are then disabled.
type Deps struct {
	Messenger  Messenger
	Membership channels.MembershipChannel
	Store      Store
	Access     *access.Manager
	Cooldown   limiter.Cooldown
	Tracker    *limiter.Tracker
	Batches    *limiter.Batches
	Fetcher    Fetcher
	Videos     VideoDownloader
	Uploader   Uploader
	Login      LoginFunc
}

// Bot routes incoming messages to handlers.
type Bot struct {
	cfg    Config
	deps   Deps
	convos *Conversations
	logger *slog.Logger

	sleep func(ctx context.Context, d time.Duration) error
	wg    sync.WaitGroup
}

// New creates a bot.
func New(cfg Config, deps Deps, logger *slog.Logger) *Bot {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = def.Cooldown
	}
	if cfg.LinkDelay < 0 {
		cfg.LinkDelay = 0
	}
	if cfg.BatchDelay < 0 {
		cfg.BatchDelay = 0
	}
	if cfg.PhoneTimeout <= 0 {
		cfg.PhoneTimeout = def.PhoneTimeout
	}
	if cfg.CodeTimeout <= 0 {
		cfg.CodeTimeout = def.CodeTimeout
	}
	if cfg.PasswordTimeout <= 0 {
		cfg.PasswordTimeout = def.PasswordTimeout
	}
	if cfg.DefaultPremium <= 0 {
		cfg.DefaultPremium = def.DefaultPremium
	}
	if cfg.YouTubeMaxDuration <= 0 {
		cfg.YouTubeMaxDuration = def.YouTubeMaxDuration
	}
	if cfg.YouTubeSizeLimit <= 0 {
		cfg.YouTubeSizeLimit = def.YouTubeSizeLimit
	}
	if cfg.ForceSub.Contact == "" {
		cfg.ForceSub.Contact = def.ForceSub.Contact
	}
	if deps.Tracker == nil {
		deps.Tracker = limiter.NewTracker()
	}
	if deps.Batches == nil {
		deps.Batches = limiter.NewBatches()
	}
	if deps.Cooldown == nil {
		deps.Cooldown = limiter.NewMemoryCooldown()
	}
	return &Bot{
		cfg:    cfg,
		deps:   deps,
		convos: NewConversations(),
		logger: logger.With("component", "bot"),
		sleep:  sleepCtx,
	}
}

// Run consumes messages until ctx is done, then cancels running
// processes and waits for handlers to return.
func (b *Bot) Run(ctx context.Context) error {
	b.logger.Info("bot started")
	defer func() {
		b.deps.Tracker.CancelAll()
		b.wg.Wait()
		b.logger.Info("bot stopped")
	}()

	in := b.deps.Messenger.Receive()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-in:
			if !ok {
				return nil
			}
			b.wg.Add(1)
			go func() {
				defer b.wg.Done()
				b.handleMessage(ctx, msg)
			}()
		}
	}
}

// handleMessage processes one message: pending conversation replies
// first, then commands, then links.
func (b *Bot) handleMessage(ctx context.Context, msg *channels.IncomingMessage) {
	start := time.Now()
	logger := b.logger.With("chat_id", msg.ChatID, "from", msg.From, "msg_id", msg.ID)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic in message handler", "panic", r, "stack", string(debug.Stack()))
		}
	}()

	if !msg.IsPrivate {
		return
	}

	if b.convos.Pending(msg.ChatID) {
		if msg.Command == "cancel" {
			b.convos.Cancel(msg.ChatID)
			return
		}
		if b.convos.Deliver(msg) {
			return
		}
	}

	if err := b.deps.Store.TouchUser(ctx, msg.From); err != nil {
		logger.Debug("touch user failed", "error", err)
	}

	if msg.Command != "" {
		logger.Info("command", "command", msg.Command)
		b.dispatch(ctx, msg)
	} else {
		b.handleText(ctx, msg)
	}
	logger.Debug("message handled", "took", time.Since(start).Truncate(time.Millisecond))
}

func (b *Bot) dispatch(ctx context.Context, msg *channels.IncomingMessage) {
	switch msg.Command {
	case "start":
		b.reply(ctx, msg, textStart)
	case "help":
		text := textHelp
		if b.deps.Access.IsOwner(msg.From) {
			text += textHelpOwner
		}
		b.reply(ctx, msg, text)
	case "login":
		b.handleLogin(ctx, msg)
	case "logout":
		b.handleLogout(ctx, msg)
	case "cancel":
		b.handleCancel(ctx, msg)
	case "batch":
		b.handleBatch(ctx, msg)
	case "done":
		b.handleDone(ctx, msg)
	case "dl":
		b.handleYouTube(ctx, msg, msg.Args, false)
	case "adl":
		b.handleYouTube(ctx, msg, msg.Args, true)
	case "join":
		b.handleJoin(ctx, msg)
	case "settings":
		b.handleSettings(ctx, msg)
	case "setchat":
		b.handleSetChat(ctx, msg)
	case "setcaption":
		b.handleSetCaption(ctx, msg)
	case "setrename":
		b.handleSetRename(ctx, msg)
	case "setclean":
		b.handleSetClean(ctx, msg)
	case "reset":
		b.handleReset(ctx, msg)
	case "myplan":
		b.handleMyPlan(ctx, msg)
	case "transfer":
		b.handleTransfer(ctx, msg)
	case "add", "rem", "freepass", "stats", "broadcast":
		if !b.deps.Access.IsOwner(msg.From) {
			b.reply(ctx, msg, textOwnerOnly)
			return
		}
		b.dispatchOwner(ctx, msg)
	}
}

func (b *Bot) dispatchOwner(ctx context.Context, msg *channels.IncomingMessage) {
	switch msg.Command {
	case "add":
		b.handleAdd(ctx, msg)
	case "rem":
		b.handleRem(ctx, msg)
	case "freepass":
		b.handleFreePass(ctx, msg)
	case "stats":
		b.handleStats(ctx, msg)
	case "broadcast":
		b.handleBroadcast(ctx, msg)
	}
}

// handleText treats plain text as a link: collected while batch mode is
// on, downloaded for YouTube links, relayed for Telegram links.
func (b *Bot) handleText(ctx context.Context, msg *channels.IncomingMessage) {
	text := strings.TrimSpace(msg.Content)
	if text == "" {
		return
	}
	if b.deps.Batches.Active(msg.From) {
		b.addToBatch(ctx, msg)
		return
	}
	if link := extractYouTube(text); link != "" {
		b.handleYouTube(ctx, msg, link, false)
		return
	}
	if looksLikeTelegramLink(text) {
		b.handleSingleLink(ctx, msg)
	}
}

// reply sends text to the message's chat and returns the new message ID.
func (b *Bot) reply(ctx context.Context, msg *channels.IncomingMessage, text string) int {
	return b.send(ctx, msg.ChatID, text)
}

func (b *Bot) send(ctx context.Context, chatID int64, text string) int {
	id, err := b.deps.Messenger.Send(ctx, chatID, channels.Text(text))
	if err != nil {
		b.logger.Warn("send failed", "chat_id", chatID, "error", err)
		return 0
	}
	return id
}

func (b *Bot) edit(ctx context.Context, chatID int64, msgID int, text string) {
	if msgID == 0 {
		b.send(ctx, chatID, text)
		return
	}
	if err := b.deps.Messenger.Edit(ctx, chatID, msgID, text); err != nil {
		b.logger.Debug("edit failed", "chat_id", chatID, "msg_id", msgID, "error", err)
	}
}

func (b *Bot) delete(ctx context.Context, chatID int64, msgID int) {
	if msgID == 0 {
		return
	}
	if err := b.deps.Messenger.Delete(ctx, chatID, msgID); err != nil {
		b.logger.Debug("delete failed", "chat_id", chatID, "msg_id", msgID, "error", err)
	}
}

// ask sends prompt and waits for the user's next message.
func (b *Bot) ask(ctx context.Context, chatID int64, prompt string, timeout time.Duration) (string, error) {
	q, err := b.convos.Open(chatID)
	if err != nil {
		return "", err
	}
	b.send(ctx, chatID, prompt)
	msg, err := q.Await(ctx, timeout)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(msg.Content), nil
}

func (b *Bot) settings(ctx context.Context, userID int64) database.Settings {
	st, err := b.deps.Store.GetSettings(ctx, userID)
	if err != nil {
		b.logger.Debug("load settings failed", "user", userID, "error", err)
		return database.Settings{UserID: userID}
	}
	return st
}

func (b *Bot) stat(ctx context.Context, key string) {
	if err := b.deps.Store.IncrStat(ctx, key, 1); err != nil {
		b.logger.Debug("stat update failed", "key", key, "error", err)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04 UTC")
}

func formatLeft(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	mins := int(d.Minutes()) % 60
	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh", days, hours)
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, mins)
	default:
		return fmt.Sprintf("%dm", mins)
	}
}
