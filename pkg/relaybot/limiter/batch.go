package limiter

import (
	"errors"
	"sync"
)

// ErrBatchFull is returned when a batch reached its link limit.
var ErrBatchFull = errors.New("batch is full")

// ErrNoBatch is returned when adding to a user without batch mode.
var ErrNoBatch = errors.New("no active batch")

// Batches collects links per user while batch mode is on.
type Batches struct {
	mu    sync.Mutex
	links map[int64][]string
}

// NewBatches creates an empty collector.
func NewBatches() *Batches {
	return &Batches{links: make(map[int64][]string)}
}

// Toggle enables batch mode, or disables it and drops collected links if it
// was on. It returns the new state.
func (b *Batches) Toggle(user int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.links[user]; ok {
		delete(b.links, user)
		return false
	}
	b.links[user] = []string{}
	return true
}

// Active reports whether batch mode is on for user.
func (b *Batches) Active(user int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.links[user]
	return ok
}

// Add appends a link, refusing once limit links are queued. limit <= 0 means
// unlimited.
func (b *Batches) Add(user int64, link string, limit int) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	cur, ok := b.links[user]
	if !ok {
		return 0, ErrNoBatch
	}
	if limit > 0 && len(cur) >= limit {
		return len(cur), ErrBatchFull
	}
	b.links[user] = append(cur, link)
	return len(cur) + 1, nil
}

// Drain ends batch mode and returns the collected links.
func (b *Batches) Drain(user int64) ([]string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	cur, ok := b.links[user]
	delete(b.links, user)
	return cur, ok
}

// Discard ends batch mode without returning links.
func (b *Batches) Discard(user int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.links[user]
	delete(b.links, user)
	return ok
}
