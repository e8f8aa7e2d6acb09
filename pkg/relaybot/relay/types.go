// Package relay copies a Telegram message, found through a link, to the
// user who asked for it. Media is downloaded by a userbot, split when it is
// larger than one upload allows, and sent again through the bot.
package relay

import (
	"context"
	"errors"
	"time"

	"github.com/jholhewres/relaybot/pkg/relaybot/links"
	"github.com/jholhewres/relaybot/pkg/relaybot/media"
)

var (
	// ErrMessageNotFound is returned when the link points at nothing.
	ErrMessageNotFound = errors.New("message not found")

	// ErrEmptyMessage is returned for service messages and messages with
	// neither text nor media.
	ErrEmptyMessage = errors.New("invalid message or empty content")

	// ErrUnsupportedMedia is returned for media that cannot be downloaded
	// (polls, contacts, locations).
	ErrUnsupportedMedia = errors.New("unsupported media")
)

// MediaKind classifies the content of a message.
type MediaKind int

const (
	MediaNone MediaKind = iota
	MediaPhoto
	MediaVideo
	MediaAudio
	MediaDocument
	MediaWebPage
)

func (k MediaKind) String() string {
	switch k {
	case MediaPhoto:
		return "photo"
	case MediaVideo:
		return "video"
	case MediaAudio:
		return "audio"
	case MediaDocument:
		return "document"
	case MediaWebPage:
		return "webpage"
	default:
		return "none"
	}
}

// Message is a fetched source message.
type Message struct {
	ID     int
	ChatID int64

	// Text is the message text, or the caption for media.
	Text string

	Media    MediaKind
	FileName string
	MIME     string
	Size     int64
	Duration time.Duration
	Width    int
	Height   int

	Service bool

	// Handle is owned by the Source and identifies the file to download.
	Handle any
}

// HasFile reports whether the message carries a downloadable file.
func (m *Message) HasFile() bool {
	return m.Media != MediaNone && m.Media != MediaWebPage
}

// ProgressFunc receives transferred and total bytes.
type ProgressFunc func(current, total int64)

// Source fetches messages and their files. Userbots implement it.
type Source interface {
	Message(ctx context.Context, link links.Link) (*Message, error)
	Download(ctx context.Context, msg *Message, dst string, progress ProgressFunc) (string, error)
}

// OutgoingFile is a local file to send.
type OutgoingFile struct {
	Path    string
	Name    string
	Caption string
	MIME    string

	// Video files are sent streamable with the metadata below.
	Video    bool
	Duration time.Duration
	Width    int
	Height   int
	Thumb    string

	// Audio files are sent as documents with an audio attribute.
	Audio     bool
	Title     string
	Performer string
}

// Sender delivers text and files to a chat.
type Sender interface {
	SendText(ctx context.Context, chatID int64, text string) error
	SendFile(ctx context.Context, chatID int64, f OutgoingFile, progress ProgressFunc) error
}

// Notifier edits the status message shown to the requesting user.
type Notifier interface {
	Notify(ctx context.Context, chatID int64, text string) (int, error)
	Edit(ctx context.Context, chatID int64, msgID int, text string) error
	Delete(ctx context.Context, chatID int64, msgID int) error
}

// Prober reads video metadata and grabs a thumbnail frame.
type Prober interface {
	Probe(ctx context.Context, path string) media.Metadata
	Screenshot(ctx context.Context, path string, duration time.Duration, out string) string
}

// StatsRecorder counts relayed messages and bytes.
type StatsRecorder interface {
	IncrStat(ctx context.Context, key string, delta int64) error
}
