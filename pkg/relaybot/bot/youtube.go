package bot

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/jholhewres/relaybot/pkg/relaybot/channels"
	"github.com/jholhewres/relaybot/pkg/relaybot/database"
	"github.com/jholhewres/relaybot/pkg/relaybot/links"
	"github.com/jholhewres/relaybot/pkg/relaybot/media"
	"github.com/jholhewres/relaybot/pkg/relaybot/progress"
	"github.com/jholhewres/relaybot/pkg/relaybot/relay"
	"github.com/jholhewres/relaybot/pkg/relaybot/youtube"
)

// handleYouTube downloads a YouTube video (or its audio) and uploads it
// to the user's destination chat.
func (b *Bot) handleYouTube(ctx context.Context, msg *channels.IncomingMessage, raw string, audio bool) {
	if b.deps.Videos == nil || b.deps.Uploader == nil {
		return
	}
	if !b.subscribed(ctx, msg) {
		return
	}
	url := links.ExtractLink(raw)
	if url == "" || !links.IsYouTubeLink(url) {
		cmd := "dl"
		if audio {
			cmd = "adl"
		}
		b.reply(ctx, msg, fmt.Sprintf(textYTUsage, cmd))
		return
	}

	user := msg.From
	pctx, done, err := b.deps.Tracker.Begin(ctx, user)
	if err != nil {
		b.reply(ctx, msg, textOngoing)
		return
	}
	defer done()

	status := b.reply(ctx, msg, textYTStart)
	edit := func(ctx context.Context, text string) error {
		return b.deps.Messenger.Edit(ctx, msg.ChatID, status, text)
	}
	reporter := progress.NewReporter(progress.DownloadHeader, edit, b.logger)

	limited := b.deps.Access.Limited(ctx, user)
	video, err := b.deps.Videos.Download(pctx, url, youtube.Options{
		AudioOnly:   audio,
		CheckLimits: limited,
		Progress:    reporter.Func(pctx),
	})
	if err != nil {
		b.finishYouTube(ctx, msg.ChatID, status, err)
		return
	}
	defer video.Cleanup()

	b.edit(ctx, msg.ChatID, status, textYTUpload)
	st := b.settings(ctx, user)
	out := videoFile(video, audio, st)
	req := relay.Request{UserID: user, ChatID: msg.ChatID, StatusMsgID: status, Settings: st}
	if _, err := b.deps.Uploader.Upload(pctx, req, out, video.Size); err != nil {
		b.finishYouTube(ctx, msg.ChatID, status, err)
		return
	}

	b.stat(ctx, database.StatYouTube)
	b.logger.Info("youtube relayed", "user", user, "id", video.ID, "audio", audio, "size", video.Size)
	b.delete(ctx, msg.ChatID, status)
}

func (b *Bot) finishYouTube(ctx context.Context, chatID int64, status int, err error) {
	var text string
	switch {
	case errors.Is(err, context.Canceled):
		b.delete(ctx, chatID, status)
		return
	case errors.Is(err, youtube.ErrTooLong):
		text = fmt.Sprintf(textYTTooLong, b.cfg.YouTubeMaxDuration)
	case errors.Is(err, youtube.ErrTooLarge):
		text = fmt.Sprintf(textYTTooLarge, progress.HumanBytes(float64(b.cfg.YouTubeSizeLimit)))
	default:
		b.logger.Error("youtube download failed", "error", err)
		text = fmt.Sprintf(textYTFailed, err)
	}
	b.edit(ctx, chatID, status, text)
}

func videoFile(v *youtube.Video, audio bool, st database.Settings) relay.OutgoingFile {
	title := v.Title
	if title == "" {
		title = v.ID
	}
	name := relay.RenameFile(media.SanitizeFilename(title)+filepath.Ext(v.Path), st)
	caption := relay.ApplyCaption(title, st)

	out := relay.OutgoingFile{
		Path:    v.Path,
		Name:    name,
		Caption: caption,
		MIME:    v.MIME,
	}
	if audio {
		out.Audio = true
		out.Title = title
		out.Performer = strings.TrimSpace(v.Author)
		return out
	}
	out.Video = true
	out.Duration = v.Duration
	out.Width = v.Width
	out.Height = v.Height
	out.Thumb = v.Thumb
	return out
}
