package limiter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func TestTracker(t *testing.T) {
	tr := NewTracker()
	ctx := context.Background()

	pctx, done, err := tr.Begin(ctx, 1)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if _, _, err := tr.Begin(ctx, 1); !errors.Is(err, ErrProcessRunning) {
		t.Errorf("second Begin = %v, want ErrProcessRunning", err)
	}
	if !tr.Active(1) || tr.Active(2) {
		t.Error("Active mismatch")
	}

	if !tr.Cancel(1) {
		t.Fatal("Cancel should report a running process")
	}
	select {
	case <-pctx.Done():
	case <-time.After(time.Second):
		t.Fatal("Cancel did not cancel the process context")
	}
	if tr.Cancel(1) {
		t.Error("second Cancel should report false")
	}

	// The cancelled process still owns the user until its done runs.
	if _, _, err := tr.Begin(ctx, 1); !errors.Is(err, ErrProcessRunning) {
		t.Errorf("Begin before done = %v, want ErrProcessRunning", err)
	}
	if !tr.Active(1) || tr.Count() != 1 {
		t.Error("cancelled process released before done")
	}
	done()

	_, done2, err := tr.Begin(ctx, 1)
	if err != nil {
		t.Fatalf("Begin after done: %v", err)
	}
	done()
	if !tr.Active(1) {
		t.Error("stale done removed the newer process")
	}
	done2()
	if tr.Active(1) || tr.Count() != 0 {
		t.Error("done should release the process")
	}
	if tr.Cancel(1) {
		t.Error("Cancel on idle user should report false")
	}
}

func TestTrackerCancelAll(t *testing.T) {
	tr := NewTracker()
	a, doneA, _ := tr.Begin(context.Background(), 1)
	b, _, _ := tr.Begin(context.Background(), 2)
	tr.CancelAll()
	if a.Err() == nil || b.Err() == nil {
		t.Error("CancelAll should cancel every context")
	}
	if tr.Count() != 2 {
		t.Errorf("Count = %d, processes stay tracked until done", tr.Count())
	}
	doneA()
	if tr.Active(1) || !tr.Active(2) {
		t.Error("done should release only its own process")
	}
}

func TestMemoryCooldown(t *testing.T) {
	c := NewMemoryCooldown()
	ctx := context.Background()
	clock := time.Unix(0, 0)
	c.now = func() time.Time { return clock }

	if d, _ := c.Remaining(ctx, 1); d != 0 {
		t.Errorf("no cooldown expected, got %v", d)
	}
	c.Set(ctx, 1, DefaultCooldown)
	c.Set(ctx, 2, time.Minute)

	clock = clock.Add(10 * time.Minute)
	if d, _ := c.Remaining(ctx, 1); d != 35*time.Minute {
		t.Errorf("Remaining = %v, want 35m", d)
	}

	n, _ := c.Sweep(ctx)
	if n != 1 {
		t.Errorf("Sweep removed %d, want 1", n)
	}

	c.Clear(ctx, 1)
	if d, _ := c.Remaining(ctx, 1); d != 0 {
		t.Errorf("Clear should drop cooldown, got %v", d)
	}
}

func TestRedisCooldown(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	c, err := NewRedisCooldown(ctx, RedisConfig{Addr: mr.Addr()})
	if err != nil {
		t.Fatalf("NewRedisCooldown: %v", err)
	}
	defer c.Close()

	if d, err := c.Remaining(ctx, 42); err != nil || d != 0 {
		t.Fatalf("Remaining on empty = %v, %v", d, err)
	}
	if err := c.Set(ctx, 42, time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if d, _ := c.Remaining(ctx, 42); d <= 0 || d > time.Minute {
		t.Errorf("Remaining = %v", d)
	}

	mr.FastForward(2 * time.Minute)
	if d, _ := c.Remaining(ctx, 42); d != 0 {
		t.Errorf("cooldown should expire, got %v", d)
	}

	c.Set(ctx, 43, time.Minute)
	c.Clear(ctx, 43)
	if mr.Exists("relaybot:cooldown:43") {
		t.Error("Clear should delete the key")
	}
}

func TestBatches(t *testing.T) {
	b := NewBatches()

	if _, err := b.Add(1, "x", 0); !errors.Is(err, ErrNoBatch) {
		t.Errorf("Add without batch = %v", err)
	}
	if !b.Toggle(1) || !b.Active(1) {
		t.Fatal("Toggle should enable batch mode")
	}
	b.Add(1, "a", 2)
	b.Add(1, "b", 2)
	if _, err := b.Add(1, "c", 2); !errors.Is(err, ErrBatchFull) {
		t.Errorf("third Add = %v, want ErrBatchFull", err)
	}

	links, ok := b.Drain(1)
	if !ok || len(links) != 2 || links[0] != "a" {
		t.Errorf("Drain = %v, %v", links, ok)
	}
	if b.Active(1) {
		t.Error("Drain should end batch mode")
	}

	b.Toggle(2)
	if b.Toggle(2) {
		t.Error("second Toggle should disable")
	}
	if _, ok := b.Drain(2); ok {
		t.Error("disabled batch should not drain")
	}
}
