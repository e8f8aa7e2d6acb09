package progress

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestHumanBytes(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, ""},
		{512, "512 B"},
		{1024, "1024 B"},
		{1536, "1.5 KB"},
		{5 * 1024 * 1024, "5 MB"},
		{2.5 * 1024 * 1024 * 1024, "2.5 GB"},
	}
	for _, tt := range tests {
		if got := HumanBytes(tt.in); got != tt.want {
			t.Errorf("HumanBytes(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		ms   int64
		want string
	}{
		{0, "0s"},
		{5, "5ms"},
		{61_000, "1m, 1s"},
		{90_061_005, "1d, 1h, 1m, 1s, 5ms"},
	}
	for _, tt := range tests {
		if got := FormatDuration(tt.ms); got != tt.want {
			t.Errorf("FormatDuration(%d) = %q, want %q", tt.ms, got, tt.want)
		}
	}
}

func TestClock(t *testing.T) {
	if got := Clock(3725); got != "1:02:05" {
		t.Errorf("Clock(3725) = %q", got)
	}
	if got := Clock(86400 + 59); got != "0:00:59" {
		t.Errorf("Clock wraps at 24h, got %q", got)
	}
}

func TestBar(t *testing.T) {
	if got := Bar(0); got != "◇◇◇◇◇◇◇◇◇◇" {
		t.Errorf("Bar(0) = %q", got)
	}
	if got := Bar(35); got != "♦♦♦◇◇◇◇◇◇◇" {
		t.Errorf("Bar(35) = %q", got)
	}
	if got := Bar(140); got != "♦♦♦♦♦♦♦♦♦♦" {
		t.Errorf("Bar(140) = %q", got)
	}
}

func TestRender(t *testing.T) {
	text := Render(DownloadHeader, 512, 1024, 2*time.Second)
	for _, want := range []string{
		"**__Downloading...__**",
		"♦♦♦♦♦◇◇◇◇◇",
		"**__Completed:__** 512 B/1024 B",
		"**__Bytes:__** 50%",
		"**__Speed:__** 256 B/s",
		"**__ETA:__** 4s",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("render missing %q:\n%s", want, text)
		}
	}
}

func TestReporterThrottle(t *testing.T) {
	var mu sync.Mutex
	var edits []string
	r := NewReporter(UploadHeader, func(_ context.Context, text string) error {
		mu.Lock()
		defer mu.Unlock()
		edits = append(edits, text)
		return nil
	}, nil)

	clock := time.Unix(1000, 0)
	r.now = func() time.Time { return clock }
	r.start = clock

	ctx := context.Background()
	r.Report(ctx, 10, 100)
	r.Report(ctx, 20, 100)

	clock = clock.Add(11 * time.Second)
	r.Report(ctx, 50, 100)
	r.Report(ctx, 100, 100)

	if len(edits) != 3 {
		t.Fatalf("expected 3 edits (first, after interval, completion), got %d", len(edits))
	}
	if !strings.Contains(edits[2], "100%") {
		t.Errorf("last edit should show completion: %s", edits[2])
	}
}
