// Package telegram implements the bot front end on the Telegram Bot API
// using go-telegram-bot-api.
//
// Features:
//   - Long polling for updates with reconnect backoff
//   - Command parsing (/cmd@botname args)
//   - Send, edit and delete text messages
//   - Photo messages with inline URL buttons
//   - Chat membership lookups for force-subscribe
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/jholhewres/relaybot/pkg/relaybot/channels"
)

// Config holds Telegram channel configuration.
type Config struct {
	// Token is the Telegram Bot API token (from @BotFather).
	Token string `yaml:"-"`

	// AllowedChats restricts which chat IDs the bot responds to.
	// Empty means respond to all chats.
	AllowedChats []int64 `yaml:"allowed_chats"`

	// RespondToGroups enables responding in group chats.
	RespondToGroups bool `yaml:"respond_to_groups"`

	// ParseMode sets the default parse mode for outgoing messages.
	ParseMode string `yaml:"parse_mode"`

	// PollTimeout is the long polling timeout in seconds.
	PollTimeout int `yaml:"poll_timeout"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		RespondToGroups: false,
		ParseMode:       tgbotapi.ModeMarkdown,
		PollTimeout:     30,
	}
}

// Telegram implements channels.Channel and channels.MembershipChannel.
type Telegram struct {
	cfg    Config
	logger *slog.Logger

	bot      *tgbotapi.BotAPI
	username string

	messages chan *channels.IncomingMessage

	connected  atomic.Bool
	lastMsg    atomic.Value // time.Time
	errorCount atomic.Int64
	dropped    atomic.Int64

	cancel context.CancelFunc
	done   chan struct{}
	mu     sync.Mutex
}

// New creates a new Telegram channel instance.
func New(cfg Config, logger *slog.Logger) *Telegram {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ParseMode == "" {
		cfg.ParseMode = tgbotapi.ModeMarkdown
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 30
	}
	t := &Telegram{
		cfg:      cfg,
		logger:   logger.With("component", "telegram"),
		messages: make(chan *channels.IncomingMessage, 256),
	}
	if err := setBotLogger(&slogBotLogger{log: t.logger}); err != nil {
		t.logger.Warn("telegram: library logging not redirected", "error", err)
	}
	return t
}

// setBotLogger installs the library-wide logger. Replaced in tests.
var setBotLogger = tgbotapi.SetLogger

// Name returns "telegram".
func (t *Telegram) Name() string { return "telegram" }

// Username returns the bot's username once connected.
func (t *Telegram) Username() string { return t.username }

// Connect verifies the token and starts the polling loop.
func (t *Telegram) Connect(ctx context.Context) error {
	if t.cfg.Token == "" {
		return fmt.Errorf("telegram: bot token is required")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.connected.Load() {
		return nil
	}

	bot, err := tgbotapi.NewBotAPI(t.cfg.Token)
	if err != nil {
		return fmt.Errorf("telegram: failed to verify token: %w", err)
	}
	t.bot = bot
	t.username = bot.Self.UserName
	t.logger.Info("telegram: connected", "bot", bot.Self.UserName, "id", bot.Self.ID)

	pollCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.done = make(chan struct{})
	t.connected.Store(true)

	go t.pollLoop(pollCtx)
	return nil
}

// Disconnect stops the polling loop and waits for it to exit.
func (t *Telegram) Disconnect() error {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.cancel = nil
	t.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	t.bot.StopReceivingUpdates()
	<-done
	t.connected.Store(false)
	t.logger.Info("telegram: disconnected")
	return nil
}

// Receive returns the incoming message channel.
func (t *Telegram) Receive() <-chan *channels.IncomingMessage {
	return t.messages
}

// IsConnected reports whether polling is running.
func (t *Telegram) IsConnected() bool { return t.connected.Load() }

func (t *Telegram) Health() channels.HealthStatus {
	h := channels.HealthStatus{
		Connected: t.connected.Load(),
		Errors:    int(t.errorCount.Load()),
		Dropped:   int(t.dropped.Load()),
		Details:   map[string]any{"username": t.username},
	}
	if v, ok := t.lastMsg.Load().(time.Time); ok {
		h.LastSeen = v
	}
	return h
}

// Send sends a text or photo message and returns its ID.
func (t *Telegram) Send(ctx context.Context, chatID int64, msg *channels.OutgoingMessage) (int, error) {
	if !t.connected.Load() {
		return 0, channels.ErrNotConnected
	}

	var c tgbotapi.Chattable
	if msg.Photo != "" {
		p := tgbotapi.NewPhoto(chatID, tgbotapi.FileURL(msg.Photo))
		p.Caption = msg.Content
		p.ParseMode = t.parseMode(msg.ParseMode)
		p.ReplyToMessageID = msg.ReplyTo
		if kb := keyboard(msg.Buttons); kb != nil {
			p.ReplyMarkup = kb
		}
		c = p
	} else {
		m := tgbotapi.NewMessage(chatID, msg.Content)
		m.ParseMode = t.parseMode(msg.ParseMode)
		m.ReplyToMessageID = msg.ReplyTo
		m.DisableWebPagePreview = msg.DisablePreview
		if kb := keyboard(msg.Buttons); kb != nil {
			m.ReplyMarkup = kb
		}
		c = m
	}

	sent, err := t.bot.Send(c)
	if err != nil && t.parseMode(msg.ParseMode) != "" && isParseError(err) {
		// Retry without formatting when the text is not valid markup.
		t.logger.Debug("telegram: markup rejected, resending as plain text", "error", err)
		sent, err = t.bot.Send(withoutParseMode(c))
	}
	if err != nil {
		t.errorCount.Add(1)
		return 0, fmt.Errorf("%w: %w", channels.ErrSendFailed, err)
	}
	return sent.MessageID, nil
}

// Edit replaces the text of a sent message. Editing to identical text is
// not an error.
func (t *Telegram) Edit(ctx context.Context, chatID int64, messageID int, text string) error {
	if !t.connected.Load() {
		return channels.ErrNotConnected
	}
	e := tgbotapi.NewEditMessageText(chatID, messageID, text)
	e.ParseMode = t.cfg.ParseMode
	_, err := t.bot.Request(e)
	if err != nil && isParseError(err) {
		e.ParseMode = ""
		_, err = t.bot.Request(e)
	}
	if err != nil && isNotModified(err) {
		return nil
	}
	return err
}

// Delete removes a message.
func (t *Telegram) Delete(ctx context.Context, chatID int64, messageID int) error {
	if !t.connected.Load() {
		return channels.ErrNotConnected
	}
	_, err := t.bot.Request(tgbotapi.NewDeleteMessage(chatID, messageID))
	return err
}

// MemberStatus returns a user's status in a chat.
func (t *Telegram) MemberStatus(ctx context.Context, chatID, userID int64) (channels.MemberStatus, error) {
	if !t.connected.Load() {
		return "", channels.ErrNotConnected
	}
	member, err := t.bot.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{ChatID: chatID, UserID: userID},
	})
	if err != nil {
		if apiErr, ok := apiError(err); ok && apiErr.Code == 400 && strings.Contains(strings.ToLower(apiErr.Message), "not found") {
			return channels.StatusLeft, nil
		}
		return "", fmt.Errorf("telegram: get chat member: %w", err)
	}
	return channels.MemberStatus(member.Status), nil
}

// InviteLink returns the chat's primary invite link.
func (t *Telegram) InviteLink(ctx context.Context, chatID int64) (string, error) {
	if !t.connected.Load() {
		return "", channels.ErrNotConnected
	}
	link, err := t.bot.GetInviteLink(tgbotapi.ChatInviteLinkConfig{
		ChatConfig: tgbotapi.ChatConfig{ChatID: chatID},
	})
	if err != nil {
		return "", fmt.Errorf("telegram: export invite link: %w", err)
	}
	return link, nil
}

func (t *Telegram) parseMode(m channels.ParseMode) string {
	switch m {
	case "":
		return t.cfg.ParseMode
	case channels.ParseNone:
		return ""
	default:
		return string(m)
	}
}

// ---------- Polling ----------

func (t *Telegram) pollLoop(ctx context.Context) {
	defer close(t.done)
	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for ctx.Err() == nil {
		u := tgbotapi.NewUpdate(0)
		u.Timeout = t.cfg.PollTimeout
		updates := t.bot.GetUpdatesChan(u)

		if t.consume(ctx, updates) {
			return
		}

		// The updates channel closed without cancellation: restart polling.
		t.errorCount.Add(1)
		t.logger.Warn("telegram: update stream closed, reconnecting", "backoff", backoff)
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxBackoff)
	}
}

// consume forwards updates until ctx is done (returns true) or the update
// channel closes (returns false).
func (t *Telegram) consume(ctx context.Context, updates tgbotapi.UpdatesChannel) bool {
	for {
		select {
		case <-ctx.Done():
			return true
		case upd, ok := <-updates:
			if !ok {
				return ctx.Err() != nil
			}
			t.errorCount.Store(0)
			msg := t.convert(upd)
			if msg == nil {
				continue
			}
			t.lastMsg.Store(time.Now())
			select {
			case t.messages <- msg:
			default:
				t.dropped.Add(1)
				t.logger.Warn("telegram: message buffer full, dropping", "chat", msg.ChatID, "from", msg.From)
			}
		}
	}
}

// convert turns an update into an IncomingMessage, or nil when the update
// is not a message the bot should handle.
func (t *Telegram) convert(upd tgbotapi.Update) *channels.IncomingMessage {
	m := upd.Message
	if m == nil || m.From == nil || m.From.IsBot {
		return nil
	}
	if !t.allowed(m.Chat) {
		return nil
	}

	content := m.Text
	if content == "" {
		content = m.Caption
	}
	msg := &channels.IncomingMessage{
		ID:        m.MessageID,
		ChatID:    m.Chat.ID,
		From:      m.From.ID,
		FromName:  displayName(m.From),
		Content:   content,
		IsPrivate: m.Chat.IsPrivate(),
		Timestamp: m.Time(),
	}
	if m.ReplyToMessage != nil {
		msg.ReplyTo = m.ReplyToMessage.MessageID
	}
	msg.Command, msg.Args = ParseCommand(content, t.username)
	return msg
}

func (t *Telegram) allowed(chat *tgbotapi.Chat) bool {
	if chat == nil {
		return false
	}
	if !chat.IsPrivate() && !t.cfg.RespondToGroups {
		return false
	}
	if len(t.cfg.AllowedChats) == 0 {
		return true
	}
	for _, id := range t.cfg.AllowedChats {
		if id == chat.ID {
			return true
		}
	}
	return false
}

// ParseCommand splits "/cmd@bot args" into ("cmd", "args"). Commands
// addressed to another bot are ignored.
func ParseCommand(text, botName string) (string, string) {
	if !strings.HasPrefix(text, "/") {
		return "", ""
	}
	body := text[1:]
	head, args := body, ""
	if i := strings.IndexAny(body, " \n\t"); i >= 0 {
		head, args = body[:i], body[i+1:]
	}
	cmd, target, found := strings.Cut(head, "@")
	if found && botName != "" && !strings.EqualFold(target, botName) {
		return "", ""
	}
	if cmd == "" {
		return "", ""
	}
	return strings.ToLower(cmd), strings.TrimSpace(args)
}

func displayName(u *tgbotapi.User) string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		name = u.UserName
	}
	return name
}

func keyboard(buttons []channels.Button) *tgbotapi.InlineKeyboardMarkup {
	if len(buttons) == 0 {
		return nil
	}
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(buttons))
	for _, b := range buttons {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonURL(b.Text, b.URL)))
	}
	kb := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &kb
}

func withoutParseMode(c tgbotapi.Chattable) tgbotapi.Chattable {
	switch v := c.(type) {
	case tgbotapi.MessageConfig:
		v.ParseMode = ""
		return v
	case tgbotapi.PhotoConfig:
		v.ParseMode = ""
		return v
	}
	return c
}

func isParseError(err error) bool {
	apiErr, ok := apiError(err)
	return ok && strings.Contains(apiErr.Message, "can't parse entities")
}

func isNotModified(err error) bool {
	apiErr, ok := apiError(err)
	return ok && strings.Contains(apiErr.Message, "message is not modified")
}

// apiError unwraps a Bot API error returned by value or by pointer.
func apiError(err error) (tgbotapi.Error, bool) {
	var apiErr tgbotapi.Error
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	var ptr *tgbotapi.Error
	if errors.As(err, &ptr) && ptr != nil {
		return *ptr, true
	}
	return tgbotapi.Error{}, false
}

// RetryAfter returns the flood wait carried by a Bot API error.
func RetryAfter(err error) (time.Duration, bool) {
	if apiErr, ok := apiError(err); ok && apiErr.RetryAfter > 0 {
		return time.Duration(apiErr.RetryAfter) * time.Second, true
	}
	return 0, false
}

// slogBotLogger routes the library's internal logging to slog.
type slogBotLogger struct {
	log *slog.Logger
}

func (l *slogBotLogger) Println(v ...interface{}) {
	l.log.Debug(strings.TrimSpace(fmt.Sprintln(v...)))
}

func (l *slogBotLogger) Printf(format string, v ...interface{}) {
	l.log.Debug(fmt.Sprintf(format, v...))
}

// Compile-time interface checks.
var (
	_ channels.Channel           = (*Telegram)(nil)
	_ channels.MembershipChannel = (*Telegram)(nil)
)
