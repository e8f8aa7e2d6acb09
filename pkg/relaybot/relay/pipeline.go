package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gotd/td/tgerr"

	"github.com/jholhewres/relaybot/pkg/relaybot/database"
	"github.com/jholhewres/relaybot/pkg/relaybot/links"
	"github.com/jholhewres/relaybot/pkg/relaybot/media"
	"github.com/jholhewres/relaybot/pkg/relaybot/progress"
)

// Config configures the pipeline.
type Config struct {
	// SizeLimit is the largest file sent in one piece.
	SizeLimit int64

	// PartSize is the size of each part once a file is split.
	PartSize int64

	// LogGroup receives a copy of everything relayed. 0 disables it.
	LogGroup int64

	// FloodRetries is how often a FLOOD_WAIT during fetch is retried.
	FloodRetries int

	// ProgressInterval throttles status edits.
	ProgressInterval time.Duration
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		SizeLimit:        media.SizeLimit,
		PartSize:         media.PartSize,
		FloodRetries:     3,
		ProgressInterval: progress.DefaultInterval,
	}
}

// Request is one link to relay.
type Request struct {
	UserID int64

	// ChatID is where the request came from and where status is shown.
	ChatID int64

	// StatusMsgID is the "Processing..." message edited with progress.
	StatusMsgID int

	Link     links.Link
	Settings database.Settings
}

// Destination returns the chat the relayed content goes to.
func (r Request) Destination() int64 {
	if r.Settings.ChatID != 0 {
		return r.Settings.ChatID
	}
	return r.ChatID
}

// Result describes a finished relay.
type Result struct {
	Kind  MediaKind
	Bytes int64
	Parts int
}

// Pipeline fetches, downloads and re-sends messages.
type Pipeline struct {
	cfg       Config
	sender    Sender
	notifier  Notifier
	workspace *media.Workspace
	prober    Prober
	stats     StatsRecorder
	logger    *slog.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a pipeline. stats may be nil.
func New(cfg Config, sender Sender, notifier Notifier, ws *media.Workspace, prober Prober, stats StatsRecorder, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.SizeLimit <= 0 {
		cfg.SizeLimit = def.SizeLimit
	}
	if cfg.PartSize <= 0 || cfg.PartSize > cfg.SizeLimit {
		cfg.PartSize = def.PartSize
		if cfg.PartSize > cfg.SizeLimit {
			cfg.PartSize = cfg.SizeLimit
		}
	}
	if cfg.FloodRetries < 0 {
		cfg.FloodRetries = 0
	}
	if cfg.ProgressInterval <= 0 {
		cfg.ProgressInterval = def.ProgressInterval
	}
	return &Pipeline{
		cfg:       cfg,
		sender:    sender,
		notifier:  notifier,
		workspace: ws,
		prober:    prober,
		stats:     stats,
		logger:    logger.With("component", "relay"),
		sleep:     sleepCtx,
	}
}

// Process relays the message behind req.Link from src.
func (p *Pipeline) Process(ctx context.Context, src Source, req Request) (*Result, error) {
	logger := p.logger.With("user", req.UserID, "link", req.Link.Raw)
	start := time.Now()

	msg, err := p.fetch(ctx, src, req.Link)
	if err != nil {
		return nil, err
	}
	if msg.Service || (msg.Text == "" && msg.Media == MediaNone) {
		return nil, ErrEmptyMessage
	}

	dest := req.Destination()
	res := &Result{Kind: msg.Media}

	if !msg.HasFile() {
		text := ApplyCaption(msg.Text, req.Settings)
		if err := p.sender.SendText(ctx, dest, text); err != nil {
			return nil, fmt.Errorf("send text: %w", err)
		}
		p.copyText(ctx, text)
		p.count(ctx, 0)
		logger.Info("text relayed", "took", time.Since(start).Truncate(time.Millisecond))
		return res, nil
	}

	job, err := p.workspace.NewJob()
	if err != nil {
		return nil, err
	}
	defer job.Cleanup()

	down := p.reporter(req, progress.DownloadHeader)
	name := RenameFile(msg.FileName, req.Settings)
	path, err := src.Download(ctx, msg, job.Path(name), down.Func(ctx))
	if err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}

	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat download: %w", err)
	}
	res.Bytes = fi.Size()

	out := OutgoingFile{
		Path:    path,
		Name:    filepath.Base(path),
		Caption: ApplyCaption(msg.Text, req.Settings),
		MIME:    msg.MIME,
	}
	if out.MIME == "" {
		out.MIME = media.MIMEFromName(out.Name)
	}
	if msg.Media == MediaAudio {
		out.Audio = true
	}
	if msg.Media == MediaVideo || media.IsVideo(out.Name) {
		p.describeVideo(ctx, job, msg, &out)
	}

	if res.Parts, err = p.Upload(ctx, req, out, res.Bytes); err != nil {
		return nil, err
	}

	p.count(ctx, res.Bytes)
	logger.Info("media relayed",
		"kind", msg.Media.String(),
		"bytes", res.Bytes,
		"parts", res.Parts,
		"took", time.Since(start).Truncate(time.Millisecond),
	)
	return res, nil
}

// Upload sends out to the request's destination, splitting it when size
// exceeds SizeLimit. It returns the number of parts (0 when unsplit).
func (p *Pipeline) Upload(ctx context.Context, req Request, out OutgoingFile, size int64) (int, error) {
	dest := req.Destination()
	if size > p.cfg.SizeLimit {
		return p.SendSplit(ctx, req.ChatID, dest, out)
	}
	up := p.reporter(req, progress.UploadHeader)
	if err := p.sender.SendFile(ctx, dest, out, up.Func(ctx)); err != nil {
		return 0, fmt.Errorf("upload: %w", err)
	}
	p.copyFile(ctx, out)
	return 0, nil
}

// SizeLimit returns the largest file sent in one piece.
func (p *Pipeline) SizeLimit() int64 { return p.cfg.SizeLimit }

// SendSplit splits out into parts and uploads them one by one with a
// "Part : N" caption. The parts are removed afterwards.
func (p *Pipeline) SendSplit(ctx context.Context, statusChat, dest int64, out OutgoingFile) (int, error) {
	fi, err := os.Stat(out.Path)
	if err != nil {
		return 0, fmt.Errorf("stat file: %w", err)
	}

	startID, _ := p.notifier.Notify(ctx, statusChat, fmt.Sprintf("ℹ️ File size: %.2f MB", float64(fi.Size())/(1024*1024)))

	parts, err := media.Split(ctx, out.Path, p.cfg.PartSize)
	if err != nil {
		return 0, fmt.Errorf("split: %w", err)
	}
	defer media.RemoveParts(parts)

	for _, part := range parts {
		n := part.Index + 1
		editID, _ := p.notifier.Notify(ctx, statusChat, fmt.Sprintf("⬆️ Uploading part %d...", n))

		pf := out
		pf.Path = part.Path
		pf.Name = filepath.Base(part.Path)
		pf.Caption = PartCaption(out.Caption, n)
		pf.Video = false
		pf.MIME = "application/octet-stream"

		rep := progress.NewReporter(progress.UploadHeader, p.editFunc(statusChat, editID), p.logger).
			WithInterval(p.cfg.ProgressInterval)
		if err := p.sender.SendFile(ctx, dest, pf, rep.Func(ctx)); err != nil {
			return part.Index, fmt.Errorf("upload part %d: %w", n, err)
		}
		p.copyFile(ctx, pf)

		if editID != 0 {
			p.notifier.Delete(ctx, statusChat, editID)
		}
		os.Remove(part.Path)
	}

	if startID != 0 {
		p.notifier.Delete(ctx, statusChat, startID)
	}
	return len(parts), nil
}

// fetch retries FLOOD_WAIT errors up to FloodRetries times.
func (p *Pipeline) fetch(ctx context.Context, src Source, link links.Link) (*Message, error) {
	for attempt := 0; ; attempt++ {
		msg, err := src.Message(ctx, link)
		if err == nil {
			if msg == nil {
				return nil, ErrMessageNotFound
			}
			return msg, nil
		}

		wait, ok := IsFloodWait(err)
		if !ok || attempt >= p.cfg.FloodRetries {
			return nil, err
		}
		p.logger.Warn("flood wait while fetching, retrying",
			"link", link.Raw, "wait", wait, "attempt", attempt+1)
		if err := p.sleep(ctx, wait); err != nil {
			return nil, err
		}
	}
}

func (p *Pipeline) describeVideo(ctx context.Context, job *media.Job, msg *Message, out *OutgoingFile) {
	out.Video = true
	md := media.DefaultMetadata
	if p.prober != nil {
		md = p.prober.Probe(ctx, out.Path)
	}
	if md == media.DefaultMetadata && msg.Duration > 0 {
		md = media.Metadata{Width: msg.Width, Height: msg.Height, Duration: msg.Duration}
	}
	out.Width, out.Height, out.Duration = md.Width, md.Height, md.Duration
	if p.prober != nil {
		out.Thumb = p.prober.Screenshot(ctx, out.Path, md.Duration, job.TempPath(".jpg"))
	}
}

func (p *Pipeline) reporter(req Request, header string) *progress.Reporter {
	return progress.NewReporter(header, p.editFunc(req.ChatID, req.StatusMsgID), p.logger).
		WithInterval(p.cfg.ProgressInterval)
}

func (p *Pipeline) editFunc(chatID int64, msgID int) progress.EditFunc {
	return func(ctx context.Context, text string) error {
		if msgID == 0 {
			return nil
		}
		return p.notifier.Edit(ctx, chatID, msgID, text)
	}
}

func (p *Pipeline) copyText(ctx context.Context, text string) {
	if p.cfg.LogGroup == 0 {
		return
	}
	if err := p.sender.SendText(ctx, p.cfg.LogGroup, text); err != nil {
		p.logger.Warn("log group copy failed", "error", err)
	}
}

func (p *Pipeline) copyFile(ctx context.Context, f OutgoingFile) {
	if p.cfg.LogGroup == 0 {
		return
	}
	if err := p.sender.SendFile(ctx, p.cfg.LogGroup, f, nil); err != nil {
		p.logger.Warn("log group copy failed", "file", f.Name, "error", err)
	}
}

func (p *Pipeline) count(ctx context.Context, bytes int64) {
	if p.stats == nil {
		return
	}
	if err := p.stats.IncrStat(ctx, database.StatMessages, 1); err != nil {
		p.logger.Debug("stat update failed", "error", err)
	}
	if bytes > 0 {
		if err := p.stats.IncrStat(ctx, database.StatBytes, bytes); err != nil {
			p.logger.Debug("stat update failed", "error", err)
		}
	}
}

// IsFloodWait reports whether err is a FLOOD_WAIT and returns the wait.
func IsFloodWait(err error) (time.Duration, bool) {
	if err == nil {
		return 0, false
	}
	var fw *FloodWaitError
	if errors.As(err, &fw) {
		return fw.Wait, true
	}
	return tgerr.AsFloodWait(err)
}

// FloodWaitError carries a wait duration from layers that don't return
// raw RPC errors.
type FloodWaitError struct {
	Wait time.Duration
}

func (e *FloodWaitError) Error() string {
	return fmt.Sprintf("flood wait %s", e.Wait)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
