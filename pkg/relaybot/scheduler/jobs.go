package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jholhewres/relaybot/pkg/relaybot/database"
	"github.com/jholhewres/relaybot/pkg/relaybot/limiter"
	"github.com/jholhewres/relaybot/pkg/relaybot/media"
)

// Job names.
const (
	JobPremiumExpiry = "premium-expiry"
	JobTempCleanup   = "temp-cleanup"
	JobCooldownSweep = "cooldown-sweep"
)

// PlanStore is the persistence the maintenance jobs use.
type PlanStore interface {
	ExpiredPremium(ctx context.Context, now time.Time) ([]database.PremiumUser, error)
	RemovePremium(ctx context.Context, userID int64) (bool, error)
	PurgePasses(ctx context.Context, now time.Time) (int64, error)
}

// ExpiryNotifier tells users their plan ran out.
type ExpiryNotifier interface {
	NotifyExpired(ctx context.Context, userID int64)
}

// Maintenance holds what the built-in jobs operate on. Nil fields skip
// the matching job.
type Maintenance struct {
	Store     PlanStore
	Notifier  ExpiryNotifier
	Workspace *media.Workspace
	Cooldown  limiter.Cooldown
}

// AddMaintenance registers the built-in jobs with cfg's schedules.
func (s *Scheduler) AddMaintenance(cfg Config, m Maintenance) error {
	def := DefaultConfig()
	if m.Store != nil {
		if err := s.Add(JobPremiumExpiry, or(cfg.PremiumExpiry, def.PremiumExpiry), PremiumExpiry(m.Store, m.Notifier, s.logger)); err != nil {
			return err
		}
	}
	if m.Workspace != nil {
		if err := s.Add(JobTempCleanup, or(cfg.TempCleanup, def.TempCleanup), TempCleanup(m.Workspace)); err != nil {
			return err
		}
	}
	if m.Cooldown != nil || m.Store != nil {
		if err := s.Add(JobCooldownSweep, or(cfg.CooldownSweep, def.CooldownSweep), CooldownSweep(m.Cooldown, m.Store, s.logger)); err != nil {
			return err
		}
	}
	return nil
}

func or(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

// PremiumExpiry removes plans that have ended and notifies their owners.
func PremiumExpiry(store PlanStore, notify ExpiryNotifier, logger *slog.Logger) Func {
	return func(ctx context.Context) error {
		expired, err := store.ExpiredPremium(ctx, time.Now())
		if err != nil {
			return fmt.Errorf("list expired plans: %w", err)
		}
		for _, p := range expired {
			removed, err := store.RemovePremium(ctx, p.UserID)
			if err != nil {
				return fmt.Errorf("remove plan of %d: %w", p.UserID, err)
			}
			if !removed {
				continue
			}
			logger.Info("premium expired", "user", p.UserID, "expired_at", p.ExpiresAt)
			if notify != nil {
				notify.NotifyExpired(ctx, p.UserID)
			}
		}
		return nil
	}
}

// TempCleanup deletes media job directories past their TTL.
func TempCleanup(ws *media.Workspace) Func {
	return func(ctx context.Context) error {
		_, err := ws.DeleteExpired(ctx)
		return err
	}
}

// CooldownSweep drops expired cooldowns and free passes.
func CooldownSweep(cd limiter.Cooldown, store PlanStore, logger *slog.Logger) Func {
	return func(ctx context.Context) error {
		if cd != nil {
			n, err := cd.Sweep(ctx)
			if err != nil {
				return fmt.Errorf("sweep cooldowns: %w", err)
			}
			if n > 0 {
				logger.Debug("cooldowns swept", "count", n)
			}
		}
		if store != nil {
			n, err := store.PurgePasses(ctx, time.Now())
			if err != nil {
				return fmt.Errorf("purge passes: %w", err)
			}
			if n > 0 {
				logger.Debug("free passes purged", "count", n)
			}
		}
		return nil
	}
}
