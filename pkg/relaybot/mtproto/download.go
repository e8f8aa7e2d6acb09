package mtproto

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/gotd/td/telegram/downloader"
	"github.com/gotd/td/tg"

	"github.com/jholhewres/relaybot/pkg/relaybot/relay"
)

// Download implements relay.Source. The file is written to dst.
func (b *Userbot) Download(ctx context.Context, msg *relay.Message, dst string, progress relay.ProgressFunc) (string, error) {
	var loc tg.InputFileLocationClass
	switch h := msg.Handle.(type) {
	case photoHandle:
		loc = h.loc
	case documentHandle:
		loc = h.loc
	default:
		return "", relay.ErrUnsupportedMedia
	}

	f, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", dst, err)
	}

	w := &countingWriter{w: f, total: msg.Size, progress: progress}
	_, err = downloader.NewDownloader().
		Download(b.api, loc).
		WithThreads(b.cfg.UploadThreads).
		Parallel(ctx, w)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(dst)
		return "", fmt.Errorf("download %s: %w", msg.FileName, err)
	}
	w.report()
	return dst, nil
}

// countingWriter reports written bytes to a progress func.
type countingWriter struct {
	w        io.WriterAt
	total    int64
	written  atomic.Int64
	progress relay.ProgressFunc
}

func (c *countingWriter) WriteAt(p []byte, off int64) (int, error) {
	n, err := c.w.WriteAt(p, off)
	c.written.Add(int64(n))
	c.report()
	return n, err
}

func (c *countingWriter) report() {
	if c.progress == nil {
		return
	}
	cur := c.written.Load()
	total := c.total
	if total < cur {
		total = cur
	}
	c.progress(cur, total)
}
