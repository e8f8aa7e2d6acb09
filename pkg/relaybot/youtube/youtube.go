// Package youtube downloads YouTube videos (or their audio track) into a
// media workspace so the bot can upload them.
package youtube

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync/atomic"
	"time"

	ytdl "github.com/kkdai/youtube/v2"

	"github.com/jholhewres/relaybot/pkg/relaybot/media"
)

// Errors.
var (
	ErrInvalidURL = errors.New("not a YouTube video link")
	ErrNoFormat   = errors.New("no downloadable mp4 format")
	ErrTooLong    = errors.New("video is longer than allowed")
	ErrTooLarge   = errors.New("video is larger than allowed")
)

const defaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/15.2 Safari/605.1.15"

// Config configures the downloader.
type Config struct {
	// UserAgent is sent with every YouTube request.
	UserAgent string `yaml:"user_agent"`

	// CookiesEnv names an environment variable holding a Netscape
	// cookies.txt. Empty disables cookies.
	CookiesEnv string `yaml:"cookies_env"`

	// MaxDuration is the longest video accepted when limits apply.
	MaxDuration time.Duration `yaml:"max_duration"`

	// SizeLimit is the largest stream accepted when limits apply.
	SizeLimit int64 `yaml:"size_limit"`

	// Timeout bounds metadata and thumbnail requests.
	Timeout time.Duration `yaml:"timeout"`
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		UserAgent:   defaultUserAgent,
		CookiesEnv:  "YT_COOKIES",
		MaxDuration: 3 * time.Hour,
		SizeLimit:   media.SizeLimit,
		Timeout:     30 * time.Second,
	}
}

// Tools is the subset of the media prober the downloader needs.
type Tools interface {
	Probe(ctx context.Context, path string) media.Metadata
	Screenshot(ctx context.Context, path string, duration time.Duration, out string) string
	ExtractAudio(ctx context.Context, path, out string) error
}

// Options controls a single download.
type Options struct {
	// AudioOnly downloads the audio track as an m4a file.
	AudioOnly bool

	// CheckLimits enforces MaxDuration and SizeLimit.
	CheckLimits bool

	// Progress receives downloaded and total bytes.
	Progress func(current, total int64)
}

// Video is a downloaded video. Cleanup removes its files.
type Video struct {
	ID       string
	Title    string
	Author   string
	Path     string
	Thumb    string
	MIME     string
	Size     int64
	Duration time.Duration
	Width    int
	Height   int
	Quality  string

	job *media.Job
}

// NewVideo returns a video stored at path inside job. Cleanup removes job.
func NewVideo(job *media.Job, path string) *Video {
	return &Video{Path: path, job: job}
}

// Cleanup removes the downloaded files.
func (v *Video) Cleanup() {
	if v.job != nil {
		v.job.Cleanup()
	}
}

// Downloader fetches videos with kkdai/youtube.
type Downloader struct {
	cfg    Config
	client ytdl.Client
	http   *http.Client
	ws     *media.Workspace
	tools  Tools
	logger *slog.Logger
}

// New creates a downloader. Cookies are loaded from the configured
// environment variable when it is set.
func New(cfg Config, ws *media.Workspace, tools Tools, logger *slog.Logger) (*Downloader, error) {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}
	if cfg.MaxDuration <= 0 {
		cfg.MaxDuration = def.MaxDuration
	}
	if cfg.SizeLimit <= 0 {
		cfg.SizeLimit = def.SizeLimit
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	logger = logger.With("component", "youtube")

	hc := &http.Client{Transport: &UserAgentTransport{T: http.DefaultTransport, Agent: cfg.UserAgent}}
	if cfg.CookiesEnv != "" {
		if raw := os.Getenv(cfg.CookiesEnv); raw != "" {
			jar, n, err := CookieJar(raw)
			if err != nil {
				return nil, fmt.Errorf("load cookies from $%s: %w", cfg.CookiesEnv, err)
			}
			hc.Jar = jar
			logger.Info("youtube cookies loaded", "count", n)
		}
	}

	return &Downloader{
		cfg:    cfg,
		client: ytdl.Client{HTTPClient: hc},
		http:   hc,
		ws:     ws,
		tools:  tools,
		logger: logger,
	}, nil
}

// VideoID extracts the video ID from a YouTube URL.
func VideoID(url string) (string, error) {
	id, err := ytdl.ExtractVideoID(strings.TrimSpace(url))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	return id, nil
}

// Download fetches the video behind url into a new workspace job.
func (d *Downloader) Download(ctx context.Context, url string, opts Options) (*Video, error) {
	id, err := VideoID(url)
	if err != nil {
		return nil, err
	}

	infoCtx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	info, err := d.client.GetVideoContext(infoCtx, id)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("get video %s: %w", id, err)
	}

	var format *ytdl.Format
	if opts.AudioOnly {
		format = selectAudioFormat(info.Formats)
	}
	if format == nil {
		format = selectVideoFormat(info.Formats)
	}
	if format == nil {
		return nil, ErrNoFormat
	}
	if opts.CheckLimits {
		if err := checkLimits(info.Duration, estimateSize(format, info.Duration), d.cfg.MaxDuration, d.cfg.SizeLimit); err != nil {
			return nil, err
		}
	}

	job, err := d.ws.NewJob()
	if err != nil {
		return nil, err
	}
	v := NewVideo(job, "")
	v.ID, v.Title, v.Author = info.ID, info.Title, info.Author
	v.Duration, v.Width, v.Height = info.Duration, format.Width, format.Height
	v.Quality = format.QualityLabel

	ok := false
	defer func() {
		if !ok {
			job.Cleanup()
		}
	}()

	t0 := time.Now()
	ext := ".mp4"
	if strings.HasPrefix(format.MimeType, "audio/") {
		ext = ".m4a"
	}
	path := job.TempPath(ext)
	size, err := d.stream(ctx, info, format, path, opts.Progress)
	if err != nil {
		return nil, err
	}
	d.logger.Info("video downloaded",
		"id", id, "quality", format.QualityLabel, "size", size,
		"took", time.Since(t0).Truncate(time.Second))

	v.Path, v.Size, v.MIME = path, size, "video/mp4"
	if opts.AudioOnly {
		if err := d.toAudio(ctx, job, v, format); err != nil {
			return nil, err
		}
	} else {
		d.describe(ctx, job, v, info)
	}

	ok = true
	return v, nil
}

func (d *Downloader) stream(ctx context.Context, info *ytdl.Video, format *ytdl.Format, path string, progress func(int64, int64)) (int64, error) {
	rc, total, err := d.client.GetStreamContext(ctx, info, format)
	if err != nil {
		return 0, fmt.Errorf("GetStreamContext: %w", err)
	}
	defer rc.Close()
	if total == 0 {
		return 0, fmt.Errorf("GetStreamContext: stream size is zero")
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", path, err)
	}
	n, err := io.Copy(f, &progressReader{r: rc, total: total, fn: progress})
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, fmt.Errorf("download stream: %w", err)
	}
	return n, nil
}

// toAudio turns a downloaded stream into an m4a audio file. Audio-only
// formats are kept as is; muxed video is stripped with ffmpeg.
func (d *Downloader) toAudio(ctx context.Context, job *media.Job, v *Video, format *ytdl.Format) error {
	v.Width, v.Height = 0, 0
	if strings.HasPrefix(format.MimeType, "audio/") {
		v.MIME = "audio/mp4"
		return nil
	}
	out := job.TempPath(".m4a")
	if err := d.tools.ExtractAudio(ctx, v.Path, out); err != nil {
		return err
	}
	os.Remove(v.Path)
	fi, err := os.Stat(out)
	if err != nil {
		return fmt.Errorf("stat audio: %w", err)
	}
	v.Path, v.Size, v.MIME = out, fi.Size(), "audio/mp4"
	return nil
}

// describe fills missing dimensions from ffprobe and fetches a thumbnail,
// falling back to a frame of the video.
func (d *Downloader) describe(ctx context.Context, job *media.Job, v *Video, info *ytdl.Video) {
	if v.Width == 0 || v.Height == 0 || v.Duration == 0 {
		md := d.tools.Probe(ctx, v.Path)
		if v.Width == 0 || v.Height == 0 {
			v.Width, v.Height = md.Width, md.Height
		}
		if v.Duration == 0 {
			v.Duration = md.Duration
		}
	}

	if u := largestThumbnail(info.Thumbnails); u != "" {
		out := job.TempPath(".jpg")
		if err := d.fetchThumbnail(ctx, u, out); err != nil {
			d.logger.Debug("thumbnail download failed", "url", u, "error", err)
		} else {
			v.Thumb = out
			return
		}
	}
	v.Thumb = d.tools.Screenshot(ctx, v.Path, v.Duration, job.TempPath(".jpg"))
}

func (d *Downloader) fetchThumbnail(ctx context.Context, url, out string) error {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := d.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("thumbnail: HTTP %d", resp.StatusCode)
	}

	f, err := os.Create(out)
	if err != nil {
		return err
	}
	n, err := io.Copy(f, resp.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && n == 0 {
		err = errors.New("thumbnail: empty body")
	}
	if err != nil {
		os.Remove(out)
	}
	return err
}

// selectVideoFormat picks the highest resolution muxed mp4 format.
func selectVideoFormat(formats ytdl.FormatList) *ytdl.Format {
	var best *ytdl.Format
	muxed := formats.WithAudioChannels()
	for i, f := range muxed {
		if !strings.HasPrefix(f.MimeType, "video/mp4") || f.QualityLabel == "" {
			continue
		}
		if best == nil || f.Height > best.Height ||
			(f.Height == best.Height && f.Bitrate > best.Bitrate) {
			best = &muxed[i]
		}
	}
	return best
}

// selectAudioFormat picks the highest bitrate audio/mp4 format.
func selectAudioFormat(formats ytdl.FormatList) *ytdl.Format {
	var best *ytdl.Format
	audio := formats.WithAudioChannels()
	for i, f := range audio {
		if !strings.HasPrefix(f.MimeType, "audio/mp4") {
			continue
		}
		if best == nil || f.Bitrate > best.Bitrate {
			best = &audio[i]
		}
	}
	return best
}

// estimateSize returns the format's content length, or a bitrate based
// estimate when YouTube leaves it out.
func estimateSize(f *ytdl.Format, duration time.Duration) int64 {
	if f.ContentLength > 0 {
		return f.ContentLength
	}
	return int64(f.Bitrate/8) * int64(duration.Seconds())
}

func checkLimits(duration time.Duration, size int64, maxDuration time.Duration, sizeLimit int64) error {
	if duration > maxDuration {
		return fmt.Errorf("%w: %s > %s", ErrTooLong, duration, maxDuration)
	}
	if size > sizeLimit {
		return fmt.Errorf("%w: %d > %d bytes", ErrTooLarge, size, sizeLimit)
	}
	return nil
}

func largestThumbnail(thumbs ytdl.Thumbnails) string {
	var url string
	var best uint
	for _, t := range thumbs {
		if area := t.Width * t.Height; url == "" || area > best {
			url, best = t.URL, area
		}
	}
	return url
}

// UserAgentTransport sets a fixed User-Agent on every request.
type UserAgentTransport struct {
	T     http.RoundTripper
	Agent string
}

func (uat *UserAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", uat.Agent)
	return uat.T.RoundTrip(req)
}

type progressReader struct {
	r     io.Reader
	total int64
	read  atomic.Int64
	fn    func(int64, int64)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	cur := p.read.Add(int64(n))
	if p.fn != nil && n > 0 {
		p.fn(cur, p.total)
	}
	return n, err
}
