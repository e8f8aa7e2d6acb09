package progress

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultInterval is the minimum gap between two status edits.
const DefaultInterval = 10 * time.Second

// EditFunc replaces the text of the status message.
type EditFunc func(ctx context.Context, text string) error

// Reporter throttles status message edits during a transfer. It is safe for
// concurrent use since uploaders report from several worker goroutines.
type Reporter struct {
	header   string
	edit     EditFunc
	logger   *slog.Logger
	interval time.Duration
	now      func() time.Time

	mu       sync.Mutex
	start    time.Time
	lastEdit time.Time
	lastText string
}

// NewReporter creates a reporter that edits through fn.
func NewReporter(header string, fn EditFunc, logger *slog.Logger) *Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reporter{
		header:   header,
		edit:     fn,
		logger:   logger,
		interval: DefaultInterval,
		now:      time.Now,
		start:    time.Now(),
	}
}

// WithInterval overrides the edit interval.
func (r *Reporter) WithInterval(d time.Duration) *Reporter {
	r.interval = d
	return r
}

// Report records progress. Edits happen at most once per interval and
// always on completion. Edit failures are logged and swallowed.
func (r *Reporter) Report(ctx context.Context, current, total int64) {
	if r == nil || r.edit == nil {
		return
	}

	r.mu.Lock()
	now := r.now()
	done := total > 0 && current >= total
	if !done && !r.lastEdit.IsZero() && now.Sub(r.lastEdit) < r.interval {
		r.mu.Unlock()
		return
	}
	text := Render(r.header, current, total, now.Sub(r.start))
	if text == r.lastText {
		r.mu.Unlock()
		return
	}
	r.lastEdit = now
	r.lastText = text
	r.mu.Unlock()

	if err := r.edit(ctx, text); err != nil {
		r.logger.Debug("progress edit failed", "error", err)
	}
}

// Func adapts the reporter to a plain callback.
func (r *Reporter) Func(ctx context.Context) func(current, total int64) {
	return func(current, total int64) {
		r.Report(ctx, current, total)
	}
}
