// Package limiter tracks per-user work: the one running process, cooldowns
// between links and batch collection.
package limiter

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrProcessRunning is returned when a user already has an active process.
var ErrProcessRunning = errors.New("process already running")

type process struct {
	cancel    context.CancelFunc
	started   time.Time
	cancelled bool
}

// Tracker allows at most one active process per user. Cancel stops the
// process through its context; the user stays busy until the process
// calls done.
type Tracker struct {
	mu    sync.Mutex
	procs map[int64]*process
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{procs: make(map[int64]*process)}
}

// Begin registers a process for user and returns its context and a done
// func that must be called when the work ends.
func (t *Tracker) Begin(ctx context.Context, user int64) (context.Context, func(), error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, busy := t.procs[user]; busy {
		return nil, nil, ErrProcessRunning
	}

	pctx, cancel := context.WithCancel(ctx)
	p := &process{cancel: cancel, started: time.Now()}
	t.procs[user] = p

	var once sync.Once
	done := func() {
		once.Do(func() {
			cancel()
			t.mu.Lock()
			if t.procs[user] == p {
				delete(t.procs, user)
			}
			t.mu.Unlock()
		})
	}
	return pctx, done, nil
}

// Cancel cancels the user's process. It reports whether a process was
// running and not already cancelled.
func (t *Tracker) Cancel(user int64) bool {
	t.mu.Lock()
	p, ok := t.procs[user]
	if ok && p.cancelled {
		ok = false
	}
	if ok {
		p.cancelled = true
	}
	t.mu.Unlock()

	if ok {
		p.cancel()
	}
	return ok
}

// Active reports whether the user has a running process.
func (t *Tracker) Active(user int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.procs[user]
	return ok
}

// Count returns the number of running processes.
func (t *Tracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.procs)
}

// CancelAll cancels every running process, used on shutdown.
func (t *Tracker) CancelAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, p := range t.procs {
		p.cancelled = true
		p.cancel()
	}
}
