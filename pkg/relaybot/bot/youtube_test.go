package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/jholhewres/relaybot/pkg/relaybot/database"
	"github.com/jholhewres/relaybot/pkg/relaybot/media"
	"github.com/jholhewres/relaybot/pkg/relaybot/progress"
	"github.com/jholhewres/relaybot/pkg/relaybot/relay"
	"github.com/jholhewres/relaybot/pkg/relaybot/youtube"
)

const ytLink = "https://www.youtube.com/watch?v=dQw4w9WgXcQ"

// fakeVideos writes a small file into a real workspace job so Cleanup
// has something to remove.
type fakeVideos struct {
	ws  *media.Workspace
	err error

	mu    sync.Mutex
	opts  []youtube.Options
	paths []string
}

func (f *fakeVideos) Download(_ context.Context, _ string, opts youtube.Options) (*youtube.Video, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opts = append(f.opts, opts)
	if f.err != nil {
		return nil, f.err
	}
	job, err := f.ws.NewJob()
	if err != nil {
		return nil, err
	}
	ext := ".mp4"
	if opts.AudioOnly {
		ext = ".m4a"
	}
	path := job.TempPath(ext)
	if err := os.WriteFile(path, []byte("video"), 0o600); err != nil {
		return nil, err
	}
	f.paths = append(f.paths, path)

	v := youtube.NewVideo(job, path)
	v.ID, v.Title, v.Author, v.Size = "dQw4w9WgXcQ", "Never Gonna", " Rick ", 5
	return v, nil
}

type fakeUploader struct {
	err error

	mu      sync.Mutex
	files   []relay.OutgoingFile
	present []bool
}

func (f *fakeUploader) Upload(_ context.Context, _ relay.Request, out relay.OutgoingFile, _ int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, err := os.Stat(out.Path)
	f.files = append(f.files, out)
	f.present = append(f.present, err == nil)
	return 0, f.err
}

func newYouTubeHarness(t *testing.T) (*harness, *fakeVideos, *fakeUploader) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	videos := &fakeVideos{ws: media.NewWorkspace(media.WorkspaceConfig{Dir: t.TempDir()}, logger)}
	up := &fakeUploader{}
	h := newHarness(t, func(_ *Config, d *Deps) {
		d.Videos = videos
		d.Uploader = up
	})
	return h, videos, up
}

// statusOf returns the ID of the first message sent with text.
func (m *fakeMessenger) statusOf(text string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, s := range m.sent {
		if s.text == text {
			return i + 1
		}
	}
	return 0
}

func assertRemoved(t *testing.T, paths []string) {
	t.Helper()
	for _, p := range paths {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Errorf("%s still on disk (err %v)", p, err)
		}
	}
}

func TestYouTubeDownload(t *testing.T) {
	t.Run("video", func(t *testing.T) {
		h, videos, up := newYouTubeHarness(t)
		h.send(user, "/dl "+ytLink)

		if len(up.files) != 1 {
			t.Fatalf("uploads = %d", len(up.files))
		}
		out := up.files[0]
		if !out.Video || out.Audio || out.Name != "Never Gonna.mp4" || out.Caption != "Never Gonna" {
			t.Errorf("unexpected file %+v", out)
		}
		if !up.present[0] {
			t.Error("file removed before upload")
		}
		if opts := videos.opts[0]; opts.AudioOnly || !opts.CheckLimits {
			t.Errorf("options = %+v", opts)
		}
		assertRemoved(t, videos.paths)

		status := h.msgr.statusOf(textYTStart)
		if status == 0 || !h.msgr.wasDeleted(status) {
			t.Error("status message not deleted after success")
		}
		if h.store.stats[database.StatYouTube] != 1 {
			t.Error("download not counted")
		}
		if _, done, err := h.bot.deps.Tracker.Begin(context.Background(), user); err != nil {
			t.Error("process still tracked after finishing")
		} else {
			done()
		}
	})

	t.Run("audio", func(t *testing.T) {
		h, videos, up := newYouTubeHarness(t)
		h.send(user, "/adl "+ytLink)

		if len(up.files) != 1 {
			t.Fatalf("uploads = %d", len(up.files))
		}
		out := up.files[0]
		if !out.Audio || out.Video || out.Title != "Never Gonna" || out.Performer != "Rick" {
			t.Errorf("unexpected file %+v", out)
		}
		if !videos.opts[0].AudioOnly {
			t.Error("audio download not requested")
		}
		assertRemoved(t, videos.paths)
	})

	t.Run("plain link", func(t *testing.T) {
		h, videos, _ := newYouTubeHarness(t)
		h.send(user, ytLink)
		if len(videos.opts) != 1 || videos.opts[0].AudioOnly {
			t.Errorf("plain YouTube link should download video, got %+v", videos.opts)
		}
	})

	t.Run("usage", func(t *testing.T) {
		h, videos, _ := newYouTubeHarness(t)
		h.send(user, "/adl https://t.me/somechannel/1")
		if got := h.msgr.last().text; got != fmt.Sprintf(textYTUsage, "adl") {
			t.Errorf("got %q", got)
		}
		if len(videos.opts) != 0 {
			t.Error("non-YouTube link downloaded")
		}
	})
}

func TestYouTubeOngoingProcess(t *testing.T) {
	for _, cmd := range []string{"/dl ", "/adl "} {
		t.Run(strings.TrimSpace(cmd), func(t *testing.T) {
			h, videos, up := newYouTubeHarness(t)
			_, done, err := h.bot.deps.Tracker.Begin(context.Background(), user)
			if err != nil {
				t.Fatal(err)
			}
			defer done()

			h.send(user, cmd+ytLink)
			if h.msgr.last().text != textOngoing {
				t.Errorf("expected ongoing refusal, got %q", h.msgr.last().text)
			}
			if len(videos.opts) != 0 || len(up.files) != 0 {
				t.Error("second process started while one is running")
			}
		})
	}
}

func TestYouTubeFailures(t *testing.T) {
	tests := []struct {
		name    string
		dlErr   error
		upErr   error
		want    func(h *harness) string
		deleted bool
	}{
		{
			name:  "too long",
			dlErr: youtube.ErrTooLong,
			want: func(h *harness) string {
				return fmt.Sprintf(textYTTooLong, h.bot.cfg.YouTubeMaxDuration)
			},
		},
		{
			name:  "too large",
			dlErr: fmt.Errorf("stream: %w", youtube.ErrTooLarge),
			want: func(h *harness) string {
				return fmt.Sprintf(textYTTooLarge, progress.HumanBytes(float64(h.bot.cfg.YouTubeSizeLimit)))
			},
		},
		{
			name:  "download error",
			dlErr: errors.New("403 forbidden"),
			want:  func(*harness) string { return fmt.Sprintf(textYTFailed, "403 forbidden") },
		},
		{
			name:  "upload error",
			upErr: errors.New("upload: too big"),
			want:  func(*harness) string { return fmt.Sprintf(textYTFailed, "upload: too big") },
		},
		{
			name:    "cancelled upload",
			upErr:   fmt.Errorf("upload: %w", context.Canceled),
			deleted: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, videos, up := newYouTubeHarness(t)
			videos.err, up.err = tt.dlErr, tt.upErr
			h.send(user, "/dl "+ytLink)

			status := h.msgr.statusOf(textYTStart)
			if tt.deleted {
				if !h.msgr.wasDeleted(status) {
					t.Error("cancelled download should drop its status")
				}
			} else if got, want := h.msgr.editOf(status), tt.want(h); got != want {
				t.Errorf("status = %q, want %q", got, want)
			}
			assertRemoved(t, videos.paths)
			if h.store.stats[database.StatYouTube] != 0 {
				t.Error("failed download counted")
			}
		})
	}
}

func TestYouTubeLimits(t *testing.T) {
	tests := []struct {
		name    string
		setup   string
		limited bool
	}{
		{"free user", "", true},
		{"premium user", "/add 100 1 day", false},
		{"free pass", "/freepass 100 1 hour", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, videos, _ := newYouTubeHarness(t)
			if tt.setup != "" {
				h.send(owner, tt.setup)
			}
			h.send(user, "/dl "+ytLink)
			if len(videos.opts) != 1 {
				t.Fatalf("downloads = %d", len(videos.opts))
			}
			if videos.opts[0].CheckLimits != tt.limited {
				t.Errorf("CheckLimits = %v, want %v", videos.opts[0].CheckLimits, tt.limited)
			}
		})
	}

	t.Run("owner", func(t *testing.T) {
		h, videos, _ := newYouTubeHarness(t)
		h.send(owner, "/dl "+ytLink)
		if len(videos.opts) != 1 || videos.opts[0].CheckLimits {
			t.Errorf("owners are never limited: %+v", videos.opts)
		}
	})
}
