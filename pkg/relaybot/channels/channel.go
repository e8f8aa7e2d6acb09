// Package channels defines the chat front end the bot talks through. The
// Telegram Bot API adapter lives in channels/telegram.
package channels

import (
	"context"
	"errors"
	"time"
)

// Channel is a chat front end: it delivers user messages to the router and
// sends, edits and deletes bot messages.
type Channel interface {
	Name() string

	// Connect starts polling for updates; Disconnect stops it.
	Connect(ctx context.Context) error
	Disconnect() error

	// Send posts message to chatID and returns the new message ID.
	Send(ctx context.Context, chatID int64, message *OutgoingMessage) (int, error)

	// Edit replaces the text of a sent message.
	Edit(ctx context.Context, chatID int64, messageID int, text string) error

	// Delete removes a message.
	Delete(ctx context.Context, chatID int64, messageID int) error

	// Receive is closed after Disconnect.
	Receive() <-chan *IncomingMessage

	IsConnected() bool
	Health() HealthStatus
}

// MembershipChannel checks channel membership for force-subscribe.
type MembershipChannel interface {
	MemberStatus(ctx context.Context, chatID, userID int64) (MemberStatus, error)
	InviteLink(ctx context.Context, chatID int64) (string, error)
}

// MemberStatus is a user's standing in a chat.
type MemberStatus string

const (
	StatusCreator       MemberStatus = "creator"
	StatusAdministrator MemberStatus = "administrator"
	StatusMember        MemberStatus = "member"
	StatusRestricted    MemberStatus = "restricted"
	StatusLeft          MemberStatus = "left"
	StatusKicked        MemberStatus = "kicked"
)

// IsMember reports whether the status counts as joined.
func (s MemberStatus) IsMember() bool {
	switch s {
	case StatusCreator, StatusAdministrator, StatusMember, StatusRestricted:
		return true
	}
	return false
}

// IncomingMessage is a user message addressed to the bot.
type IncomingMessage struct {
	// ID is the message ID within its chat.
	ID int

	// ChatID is the chat the message was sent in.
	ChatID int64

	// From is the sender's user ID.
	From int64

	// FromName is the sender's first name, or username when empty.
	FromName string

	// Content is the text (or caption) of the message.
	Content string

	// Command is the bot command without the slash, or "".
	Command string

	// Args is the text after the command.
	Args string

	// IsPrivate is true for one-to-one chats with the bot.
	IsPrivate bool

	// ReplyTo is the ID of the replied-to message, or 0.
	ReplyTo int

	Timestamp time.Time
}

// ParseMode selects how message text is formatted.
type ParseMode string

const (
	ParseNone     ParseMode = "-"
	ParseMarkdown ParseMode = "Markdown"
	ParseHTML     ParseMode = "HTML"
)

// Button is an inline URL button.
type Button struct {
	Text string
	URL  string
}

// OutgoingMessage is a bot reply.
type OutgoingMessage struct {
	// Content is the text, or the caption when Photo is set.
	Content string

	// ParseMode overrides the channel default.
	ParseMode ParseMode

	// ReplyTo is the message to reply to, or 0.
	ReplyTo int

	// Photo is a URL sent as a photo with Content as caption.
	Photo string

	// Buttons are laid out one per row.
	Buttons []Button

	DisablePreview bool
}

// Text is a shorthand for a plain text message.
func Text(s string) *OutgoingMessage {
	return &OutgoingMessage{Content: s}
}

// HealthStatus is a snapshot of the polling loop.
type HealthStatus struct {
	Connected bool
	LastSeen  time.Time
	// Errors counts failed API calls since Connect.
	Errors int
	// Dropped counts updates discarded because Receive was full.
	Dropped int
	Details map[string]any
}

var (
	ErrNotConnected = errors.New("channel is not connected")
	ErrSendFailed   = errors.New("send failed")
)
