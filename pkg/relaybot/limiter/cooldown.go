package limiter

import (
	"context"
	"sync"
	"time"
)

// DefaultCooldown is the wait imposed on free users between links.
const DefaultCooldown = 45 * time.Minute

// Cooldown stores per-user wait periods.
type Cooldown interface {
	// Remaining returns how long the user must still wait, 0 if not limited.
	Remaining(ctx context.Context, user int64) (time.Duration, error)

	// Set starts a cooldown of d for the user.
	Set(ctx context.Context, user int64, d time.Duration) error

	// Clear removes the user's cooldown.
	Clear(ctx context.Context, user int64) error

	// Sweep drops expired entries and returns how many were removed.
	Sweep(ctx context.Context) (int, error)
}

// MemoryCooldown keeps cooldowns in process memory.
type MemoryCooldown struct {
	mu    sync.Mutex
	until map[int64]time.Time
	now   func() time.Time
}

// NewMemoryCooldown creates an in-memory cooldown store.
func NewMemoryCooldown() *MemoryCooldown {
	return &MemoryCooldown{until: make(map[int64]time.Time), now: time.Now}
}

func (c *MemoryCooldown) Remaining(_ context.Context, user int64) (time.Duration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	end, ok := c.until[user]
	if !ok {
		return 0, nil
	}
	left := end.Sub(c.now())
	if left <= 0 {
		delete(c.until, user)
		return 0, nil
	}
	return left, nil
}

func (c *MemoryCooldown) Set(_ context.Context, user int64, d time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.until[user] = c.now().Add(d)
	return nil
}

func (c *MemoryCooldown) Clear(_ context.Context, user int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.until, user)
	return nil
}

func (c *MemoryCooldown) Sweep(_ context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	n := 0
	for user, end := range c.until {
		if !end.After(now) {
			delete(c.until, user)
			n++
		}
	}
	return n, nil
}

var _ Cooldown = (*MemoryCooldown)(nil)
