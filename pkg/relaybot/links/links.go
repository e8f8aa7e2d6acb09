// Package links parses Telegram message links and invite links.
package links

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// ErrInvalidLink is returned when a link is not a recognised Telegram link.
var ErrInvalidLink = errors.New("invalid telegram link")

// Kind tells how the source chat of a link must be resolved.
type Kind string

const (
	KindPrivate Kind = "private" // t.me/c/<id>/<msg>
	KindPublic  Kind = "public"  // t.me/<username>/<msg>
	KindBot     Kind = "bot"     // t.me/b/<bot>/<msg>
	KindStory   Kind = "story"   // t.me/<username>/s/<id>
	KindUser    Kind = "user"    // tg://openmessage?user_id=&message_id=
	KindInvite  Kind = "invite"  // t.me/+HASH, t.me/joinchat/HASH
)

// Link is a parsed Telegram link.
type Link struct {
	Raw       string
	Kind      Kind
	ChatID    int64
	Username  string
	MessageID int
	TopicID   int
	Hash      string
}

// IsMessage reports whether the link points at a single message or story.
func (l Link) IsMessage() bool {
	return l.Kind != KindInvite && l.MessageID > 0
}

func (l Link) String() string { return l.Raw }

var (
	urlPattern = regexp.MustCompile(`(?i)(?:https?://[^\s<>"']+|tg://openmessage\?[^\s<>"']+)`)

	youtubeHosts = []string{"youtube.com", "www.youtube.com", "m.youtube.com", "music.youtube.com", "youtu.be"}
	telegramHost = map[string]bool{"t.me": true, "www.t.me": true, "telegram.me": true, "www.telegram.me": true, "telegram.dog": true}
)

// ExtractLink returns the first URL found in text, or "".
func ExtractLink(text string) string {
	m := urlPattern.FindString(text)
	return strings.TrimRight(m, ".,;:!?)]}")
}

// IsTelegramLink reports whether raw looks like a link this package can parse.
func IsTelegramLink(raw string) bool {
	if strings.HasPrefix(raw, "tg://") {
		return true
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return telegramHost[strings.ToLower(u.Host)]
}

// IsYouTubeLink reports whether raw points at YouTube.
func IsYouTubeLink(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}
	host := strings.ToLower(u.Host)
	for _, h := range youtubeHosts {
		if host == h {
			return true
		}
	}
	return false
}

// InviteHash returns the invite hash of an invite link and whether raw is one.
func InviteHash(raw string) (string, bool) {
	l, err := Parse(raw)
	if err != nil || l.Kind != KindInvite {
		return "", false
	}
	return l.Hash, true
}

// Parse parses a Telegram message, story or invite link.
func Parse(raw string) (Link, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "tg://") {
		return parseDeepLink(raw)
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return Link{}, fmt.Errorf("%w: %v", ErrInvalidLink, err)
	}
	if !telegramHost[strings.ToLower(u.Host)] {
		return Link{}, fmt.Errorf("%w: host %q", ErrInvalidLink, u.Host)
	}

	segs := splitPath(u.Path)
	if len(segs) == 0 {
		return Link{}, fmt.Errorf("%w: empty path", ErrInvalidLink)
	}
	link := Link{Raw: raw}

	switch {
	case strings.HasPrefix(segs[0], "+"):
		link.Kind = KindInvite
		link.Hash = strings.TrimPrefix(segs[0], "+")
	case segs[0] == "joinchat" && len(segs) >= 2:
		link.Kind = KindInvite
		link.Hash = segs[1]
	case segs[0] == "c":
		if len(segs) < 3 {
			return Link{}, fmt.Errorf("%w: private link needs chat and message", ErrInvalidLink)
		}
		id, err := strconv.ParseInt(segs[1], 10, 64)
		if err != nil || id <= 0 {
			return Link{}, fmt.Errorf("%w: bad chat id %q", ErrInvalidLink, segs[1])
		}
		link.Kind = KindPrivate
		link.ChatID = id
		if err := link.setMessage(segs[2:]); err != nil {
			return Link{}, err
		}
	case segs[0] == "b":
		if len(segs) < 3 {
			return Link{}, fmt.Errorf("%w: bot link needs bot and message", ErrInvalidLink)
		}
		link.Kind = KindBot
		link.Username = segs[1]
		if err := link.setMessage(segs[2:]); err != nil {
			return Link{}, err
		}
	case len(segs) >= 3 && segs[1] == "s":
		link.Kind = KindStory
		link.Username = segs[0]
		if err := link.setMessage(segs[2:3]); err != nil {
			return Link{}, err
		}
	case u.Query().Get("story") != "" || (u.Query().Get("message") != "" && len(segs) == 1):
		link.Kind = KindStory
		link.Username = segs[0]
		q := u.Query().Get("message")
		if q == "" {
			q = u.Query().Get("story")
		}
		if err := link.setMessage([]string{q}); err != nil {
			return Link{}, err
		}
	default:
		if len(segs) < 2 {
			return Link{}, fmt.Errorf("%w: missing message id", ErrInvalidLink)
		}
		link.Kind = KindPublic
		link.Username = segs[0]
		if err := link.setMessage(segs[1:]); err != nil {
			return Link{}, err
		}
	}

	if link.Kind == KindInvite && link.Hash == "" {
		return Link{}, fmt.Errorf("%w: empty invite hash", ErrInvalidLink)
	}
	return link, nil
}

// setMessage reads "<msg>" or "<topic>/<msg>".
func (l *Link) setMessage(segs []string) error {
	last := segs[len(segs)-1]
	id, err := strconv.Atoi(last)
	if err != nil || id <= 0 {
		return fmt.Errorf("%w: bad message id %q", ErrInvalidLink, last)
	}
	l.MessageID = id
	if len(segs) >= 2 {
		if topic, err := strconv.Atoi(segs[len(segs)-2]); err == nil {
			l.TopicID = topic
		}
	}
	return nil
}

func parseDeepLink(raw string) (Link, error) {
	u, err := url.Parse(raw)
	if err != nil || u.Host != "openmessage" {
		return Link{}, fmt.Errorf("%w: unsupported deep link", ErrInvalidLink)
	}
	q := u.Query()
	userID, err := strconv.ParseInt(q.Get("user_id"), 10, 64)
	if err != nil || userID <= 0 {
		return Link{}, fmt.Errorf("%w: bad user_id", ErrInvalidLink)
	}
	msgID, err := strconv.Atoi(q.Get("message_id"))
	if err != nil || msgID <= 0 {
		return Link{}, fmt.Errorf("%w: bad message_id", ErrInvalidLink)
	}
	return Link{Raw: raw, Kind: KindUser, ChatID: userID, MessageID: msgID}, nil
}

func splitPath(p string) []string {
	var out []string
	for _, s := range strings.Split(p, "/") {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
