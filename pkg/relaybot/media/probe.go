package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"os/exec"
	"strconv"
	"time"
)

// Metadata describes a video file.
type Metadata struct {
	Width    int
	Height   int
	Duration time.Duration
}

// DefaultMetadata is used when probing fails.
var DefaultMetadata = Metadata{Width: 1, Height: 1, Duration: time.Second}

// ToolsConfig points at the ffmpeg binaries.
type ToolsConfig struct {
	FFmpegPath    string   `yaml:"ffmpeg_path"`
	FFprobePath   string   `yaml:"ffprobe_path"`
	GlobalOptions []string `yaml:"global_options"`
}

// DefaultToolsConfig returns default configuration.
func DefaultToolsConfig() ToolsConfig {
	return ToolsConfig{
		FFmpegPath:    "ffmpeg",
		FFprobePath:   "ffprobe",
		GlobalOptions: []string{"-v", "error"},
	}
}

// Prober reads video metadata and grabs thumbnails.
type Prober struct {
	cfg    ToolsConfig
	logger *slog.Logger
}

// NewProber creates a prober.
func NewProber(cfg ToolsConfig, logger *slog.Logger) *Prober {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultToolsConfig()
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = def.FFmpegPath
	}
	if cfg.FFprobePath == "" {
		cfg.FFprobePath = def.FFprobePath
	}
	if cfg.GlobalOptions == nil {
		cfg.GlobalOptions = def.GlobalOptions
	}
	return &Prober{cfg: cfg, logger: logger.With("component", "prober")}
}

type ffprobeOutput struct {
	Streams []struct {
		CodecType string `json:"codec_type"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
		Duration  string `json:"duration"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Probe returns the size and duration of a video. Failures fall back to
// DefaultMetadata so uploads never fail on a bad probe.
func (p *Prober) Probe(ctx context.Context, path string) Metadata {
	if _, err := os.Stat(path); err != nil {
		return DefaultMetadata
	}

	args := append([]string{}, p.cfg.GlobalOptions...)
	args = append(args, "-print_format", "json", "-show_format", "-show_streams", path)

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, p.cfg.FFprobePath, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		p.logger.Debug("ffprobe failed", "path", path, "error", err, "stderr", stderr.String())
		return DefaultMetadata
	}

	md, err := parseProbe(stdout.Bytes())
	if err != nil {
		p.logger.Debug("ffprobe output unreadable", "path", path, "error", err)
		return DefaultMetadata
	}
	return md
}

func parseProbe(data []byte) (Metadata, error) {
	var out ffprobeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return DefaultMetadata, err
	}

	md := DefaultMetadata
	durationText := out.Format.Duration
	for _, s := range out.Streams {
		if s.CodecType != "video" {
			continue
		}
		if s.Width > 0 && s.Height > 0 {
			md.Width, md.Height = s.Width, s.Height
		}
		if durationText == "" {
			durationText = s.Duration
		}
		break
	}
	if secs, err := strconv.ParseFloat(durationText, 64); err == nil && secs > 0 {
		md.Duration = time.Duration(math.Round(secs)) * time.Second
		if md.Duration == 0 {
			md.Duration = time.Second
		}
	}
	return md, nil
}

// Screenshot grabs a single frame at 20% of the duration into out. It
// returns out on success and "" when no frame could be written.
func (p *Prober) Screenshot(ctx context.Context, path string, duration time.Duration, out string) string {
	at := duration.Seconds() * 0.2

	args := append([]string{}, p.cfg.GlobalOptions...)
	args = append(args,
		"-y",
		"-ss", fmt.Sprintf("%.2f", at),
		"-i", path,
		"-vframes", "1",
		"-vf", "scale=320:-2",
		out,
	)

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, p.cfg.FFmpegPath, args...)
	cmd.Stderr = &stderr

	t0 := time.Now()
	if err := cmd.Run(); err != nil {
		p.logger.Debug("screenshot failed", "path", path, "error", err, "stderr", stderr.String())
		return ""
	}
	if fi, err := os.Stat(out); err != nil || fi.Size() == 0 {
		return ""
	}
	p.logger.Debug("screenshot taken", "path", out, "took", time.Since(t0).Truncate(time.Millisecond))
	return out
}

// ExtractAudio copies the audio track of path into an m4a file.
func (p *Prober) ExtractAudio(ctx context.Context, path, out string) error {
	args := append([]string{}, p.cfg.GlobalOptions...)
	args = append(args, "-y", "-i", path, "-vn", "-c:a", "aac", "-b:a", "192k", "-f", "mp4", out)

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, p.cfg.FFmpegPath, args...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg audio extract: %w: %s", err, bytes.TrimSpace(stderr.Bytes()))
	}
	return nil
}
