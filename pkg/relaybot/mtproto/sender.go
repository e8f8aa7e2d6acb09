package mtproto

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	boltstor "github.com/gotd/contrib/bbolt"
	"github.com/gotd/contrib/bg"
	"github.com/gotd/contrib/storage"
	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/message"
	"github.com/gotd/td/telegram/message/styling"
	"github.com/gotd/td/telegram/uploader"
	"github.com/gotd/td/tg"
	"go.etcd.io/bbolt"

	"github.com/jholhewres/relaybot/pkg/relaybot/relay"
)

const maxTextLen = 4096

// BotSender uploads files as the bot account over MTProto, which allows
// files up to 2 GiB where the Bot API stops at 50 MB.
type BotSender struct {
	cfg         Config
	token       string
	sessionPath string
	logger      *slog.Logger

	mu     sync.Mutex
	client *telegram.Client
	api    *tg.Client
	db     *bbolt.DB
	peers  *boltstor.PeerStorage
	stop   bg.StopFunc
}

// NewBotSender creates a sender. sessionPath stores the bot's MTProto
// session between restarts.
func NewBotSender(cfg Config, token, sessionPath string, logger *slog.Logger) *BotSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &BotSender{
		cfg:         cfg.withDefaults(),
		token:       token,
		sessionPath: sessionPath,
		logger:      logger.With("component", "bot-mtproto"),
	}
}

// Start connects in the background and authorizes the bot if needed.
func (s *BotSender) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		return nil
	}

	for _, p := range []string{s.cfg.PeerDB, s.sessionPath} {
		if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
			return fmt.Errorf("create data dir: %w", err)
		}
	}

	db, err := bbolt.Open(s.cfg.PeerDB, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return fmt.Errorf("open peer db: %w", err)
	}
	peers := boltstor.NewPeerStorage(db, []byte("peers"))

	dispatcher := tg.NewUpdateDispatcher()
	client := NewClient(s.cfg, &session.FileStorage{Path: s.sessionPath}, storage.UpdateHook(dispatcher, peers))

	stop, err := bg.Connect(client)
	if err != nil {
		db.Close()
		return fmt.Errorf("connect: %w", err)
	}

	status, err := client.Auth().Status(ctx)
	if err == nil && !status.Authorized {
		_, err = client.Auth().Bot(ctx, s.token)
	}
	if err != nil {
		stop()
		db.Close()
		return fmt.Errorf("authorize bot: %w", err)
	}

	s.client, s.api, s.db, s.peers, s.stop = client, client.API(), db, peers, stop
	s.logger.Info("bot MTProto client connected")
	return nil
}

// Stop disconnects and closes the peer cache.
func (s *BotSender) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		return nil
	}
	err := s.stop()
	if cerr := s.db.Close(); err == nil {
		err = cerr
	}
	s.client, s.api = nil, nil
	return err
}

func (s *BotSender) state() (*tg.Client, *boltstor.PeerStorage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.api == nil {
		return nil, nil, ErrNotConnected
	}
	return s.api, s.peers, nil
}

// inputPeer maps a Bot API chat ID to an input peer. Cached access hashes
// are used when known; bots may otherwise address peers with a zero hash.
func (s *BotSender) inputPeer(ctx context.Context, peers *boltstor.PeerStorage, chatID int64) tg.InputPeerClass {
	var key tg.PeerClass
	switch kind, id := SplitChatID(chatID); kind {
	case PeerChannel:
		key = &tg.PeerChannel{ChannelID: id}
	case PeerChat:
		return &tg.InputPeerChat{ChatID: id}
	default:
		key = &tg.PeerUser{UserID: id}
	}

	if p, err := storage.FindPeer(ctx, peers, key); err == nil {
		return p.AsInputPeer()
	}
	switch k := key.(type) {
	case *tg.PeerChannel:
		return &tg.InputPeerChannel{ChannelID: k.ChannelID}
	case *tg.PeerUser:
		return &tg.InputPeerUser{UserID: k.UserID}
	}
	return &tg.InputPeerEmpty{}
}

// SendText implements relay.Sender. Long texts are sent in chunks.
func (s *BotSender) SendText(ctx context.Context, chatID int64, text string) error {
	api, peers, err := s.state()
	if err != nil {
		return err
	}
	to := message.NewSender(api).To(s.inputPeer(ctx, peers, chatID))
	for _, chunk := range chunkText(text, maxTextLen) {
		if _, err := to.Text(ctx, chunk); err != nil {
			return fmt.Errorf("send text: %w", err)
		}
	}
	return nil
}

// SendFile implements relay.Sender.
func (s *BotSender) SendFile(ctx context.Context, chatID int64, f relay.OutgoingFile, progress relay.ProgressFunc) error {
	api, peers, err := s.state()
	if err != nil {
		return err
	}

	up := uploader.NewUploader(api).WithThreads(s.cfg.UploadThreads)
	if progress != nil {
		up = up.WithProgress(uploadProgress(progress))
	}
	file, err := up.FromPath(ctx, f.Path)
	if err != nil {
		return fmt.Errorf("upload %s: %w", f.Name, err)
	}

	caption := styleCaption(f.Caption)
	name := f.Name
	if name == "" {
		name = filepath.Base(f.Path)
	}
	doc := message.UploadedDocument(file, caption...).MIME(f.MIME).Filename(name)

	if f.Thumb != "" {
		thumb, err := uploader.NewUploader(api).FromPath(ctx, f.Thumb)
		if err != nil {
			s.logger.Debug("thumbnail upload failed", "path", f.Thumb, "error", err)
		} else {
			doc = doc.Thumb(thumb)
		}
	}

	var opt message.MediaOption = doc
	switch {
	case f.Video:
		opt = doc.Video().
			Duration(f.Duration).
			Resolution(f.Width, f.Height).
			SupportsStreaming()
	case f.Audio:
		opt = doc.Audio().
			Title(f.Title).
			Performer(f.Performer).
			Duration(f.Duration)
	}

	to := message.NewSender(api).WithUploader(up).To(s.inputPeer(ctx, peers, chatID))
	if _, err := to.Media(ctx, opt); err != nil {
		return fmt.Errorf("send %s: %w", name, err)
	}
	return nil
}

// uploadProgress adapts a relay.ProgressFunc to the uploader.
type uploadProgress relay.ProgressFunc

func (p uploadProgress) Chunk(_ context.Context, state uploader.ProgressState) error {
	p(state.Uploaded, state.Total)
	return nil
}

// PeerKind is the kind of chat a Bot API chat ID refers to.
type PeerKind int

const (
	PeerUser PeerKind = iota
	PeerChat
	PeerChannel
)

const channelOffset = 1000000000000

// SplitChatID converts a Bot API chat ID (-100... for channels, negative
// for basic groups) into a kind and a plain MTProto ID.
func SplitChatID(chatID int64) (PeerKind, int64) {
	switch {
	case chatID > 0:
		return PeerUser, chatID
	case chatID < -channelOffset:
		return PeerChannel, -chatID - channelOffset
	default:
		return PeerChat, -chatID
	}
}

func chunkText(s string, n int) []string {
	r := []rune(s)
	if len(r) <= n {
		return []string{s}
	}
	var out []string
	for len(r) > 0 {
		end := n
		if end > len(r) {
			end = len(r)
		}
		out = append(out, string(r[:end]))
		r = r[end:]
	}
	return out
}

type captionPart struct {
	text string
	bold bool
}

// splitBold splits s on **bold** markers. An unmatched marker stays text.
func splitBold(s string) []captionPart {
	var parts []captionPart
	for s != "" {
		i := strings.Index(s, "**")
		if i < 0 {
			parts = append(parts, captionPart{text: s})
			break
		}
		j := strings.Index(s[i+2:], "**")
		if j < 0 {
			parts = append(parts, captionPart{text: s})
			break
		}
		if i > 0 {
			parts = append(parts, captionPart{text: s[:i]})
		}
		if j > 0 {
			parts = append(parts, captionPart{text: s[i+2 : i+2+j], bold: true})
		}
		s = s[i+2+j+2:]
	}
	return parts
}

// styleCaption renders a caption with its **bold** spans (the part label)
// as bold entities.
func styleCaption(caption string) []styling.StyledTextOption {
	var opts []styling.StyledTextOption
	for _, p := range splitBold(caption) {
		if p.bold {
			opts = append(opts, styling.Bold(p.text))
		} else {
			opts = append(opts, styling.Plain(p.text))
		}
	}
	return opts
}
