// Package access implements owner, premium and free-tier gating.
//
// Tiers:
//   - premium: owners and users with an unexpired plan; no cooldown, larger batches
//   - free:    everyone else; cooldown between links unless a free pass is active
//
// When the freemium limit is 0 the free tier is closed and only premium users
// are served.
package access

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/jholhewres/relaybot/pkg/relaybot/database"
)

// Tier is the service level of a user. Premium is 0 so that checks read
// like "tier != TierPremium".
type Tier int

const (
	TierPremium Tier = 0
	TierFree    Tier = 1
)

func (t Tier) String() string {
	if t == TierPremium {
		return "premium"
	}
	return "free"
}

// ErrNoPlan is returned when transferring or removing a plan that does not exist.
var ErrNoPlan = errors.New("user has no premium plan")

// Config holds the access control configuration.
type Config struct {
	// Owners have admin commands and are always premium.
	Owners []int64 `yaml:"owners"`

	// FreemiumLimit is the batch size allowed to free users. 0 closes the free tier.
	FreemiumLimit int `yaml:"freemium_limit"`

	// PremiumLimit is the batch size allowed to premium users.
	PremiumLimit int `yaml:"premium_limit"`

	// FreePass is the default length of an owner-granted free pass.
	FreePass time.Duration `yaml:"free_pass"`
}

// DefaultConfig returns the default access config.
func DefaultConfig() Config {
	return Config{
		FreemiumLimit: 10,
		PremiumLimit:  500,
		FreePass:      3 * time.Hour,
	}
}

// Store is the persistence the manager needs.
type Store interface {
	GetPremium(ctx context.Context, userID int64) (*database.PremiumUser, error)
	AddPremium(ctx context.Context, p database.PremiumUser) error
	RemovePremium(ctx context.Context, userID int64) (bool, error)
	PassExpiry(ctx context.Context, userID int64) (time.Time, error)
	GrantPass(ctx context.Context, userID int64, until time.Time) error
}

// Plan describes a user's standing, for /myplan.
type Plan struct {
	UserID    int64
	Tier      Tier
	Owner     bool
	ExpiresAt time.Time
	PassUntil time.Time
}

// Manager answers access questions for the bot.
type Manager struct {
	cfg    Config
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// NewManager creates a manager.
func NewManager(cfg Config, store Store, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.FreePass <= 0 {
		cfg.FreePass = DefaultConfig().FreePass
	}
	return &Manager{
		cfg:    cfg,
		store:  store,
		logger: logger.With("component", "access"),
		now:    time.Now,
	}
}

// IsOwner reports whether id is a configured owner.
func (m *Manager) IsOwner(id int64) bool {
	return slices.Contains(m.cfg.Owners, id)
}

// Owners returns the configured owners.
func (m *Manager) Owners() []int64 {
	return slices.Clone(m.cfg.Owners)
}

// FreeServiceAvailable reports whether free users are served at all.
func (m *Manager) FreeServiceAvailable() bool {
	return m.cfg.FreemiumLimit > 0
}

// BatchLimit returns how many links a user of the given tier may queue.
func (m *Manager) BatchLimit(t Tier) int {
	if t == TierPremium {
		return m.cfg.PremiumLimit
	}
	return m.cfg.FreemiumLimit
}

// IsPremium reports whether the user holds an unexpired plan.
func (m *Manager) IsPremium(ctx context.Context, id int64) (bool, error) {
	p, err := m.store.GetPremium(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return p.ExpiresAt.After(m.now()), nil
}

// CheckUser returns TierPremium for owners and premium users, TierFree
// otherwise. Store failures degrade to TierFree.
func (m *Manager) CheckUser(ctx context.Context, id int64) Tier {
	if m.IsOwner(id) {
		return TierPremium
	}
	ok, err := m.IsPremium(ctx, id)
	if err != nil {
		m.logger.Warn("premium lookup failed", "user", id, "error", err)
		return TierFree
	}
	if ok {
		return TierPremium
	}
	return TierFree
}

// IsVerified reports whether the user holds an active free pass.
func (m *Manager) IsVerified(ctx context.Context, id int64) bool {
	until, err := m.store.PassExpiry(ctx, id)
	if err != nil {
		if !errors.Is(err, database.ErrNotFound) {
			m.logger.Warn("pass lookup failed", "user", id, "error", err)
		}
		return false
	}
	return until.After(m.now())
}

// Limited reports whether free-tier limits apply: a free user without
// an active free pass.
func (m *Manager) Limited(ctx context.Context, id int64) bool {
	return m.CheckUser(ctx, id) == TierFree && !m.IsVerified(ctx, id)
}

// NeedsCooldown reports whether links from this user are rate limited.
func (m *Manager) NeedsCooldown(ctx context.Context, id int64) bool {
	return m.Limited(ctx, id)
}

// AddPremium grants or extends a plan by d and returns the new expiry. An
// active plan is extended from its current expiry.
func (m *Manager) AddPremium(ctx context.Context, id int64, d time.Duration, by int64) (time.Time, error) {
	if d <= 0 {
		return time.Time{}, fmt.Errorf("plan duration must be positive")
	}
	start := m.now()
	if p, err := m.store.GetPremium(ctx, id); err == nil && p.ExpiresAt.After(start) {
		start = p.ExpiresAt
	} else if err != nil && !errors.Is(err, database.ErrNotFound) {
		return time.Time{}, err
	}

	expires := start.Add(d)
	if err := m.store.AddPremium(ctx, database.PremiumUser{UserID: id, ExpiresAt: expires, AddedBy: by}); err != nil {
		return time.Time{}, err
	}
	m.logger.Info("premium granted", "user", id, "by", by, "expires", expires)
	return expires, nil
}

// RemovePremium revokes a plan.
func (m *Manager) RemovePremium(ctx context.Context, id int64) error {
	ok, err := m.store.RemovePremium(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNoPlan
	}
	m.logger.Info("premium removed", "user", id)
	return nil
}

// Transfer moves the remaining plan of from to to.
func (m *Manager) Transfer(ctx context.Context, from, to int64) (time.Time, error) {
	p, err := m.store.GetPremium(ctx, from)
	if errors.Is(err, database.ErrNotFound) {
		return time.Time{}, ErrNoPlan
	}
	if err != nil {
		return time.Time{}, err
	}
	remaining := p.ExpiresAt.Sub(m.now())
	if remaining <= 0 {
		return time.Time{}, ErrNoPlan
	}

	expires, err := m.AddPremium(ctx, to, remaining, from)
	if err != nil {
		return time.Time{}, err
	}
	if _, err := m.store.RemovePremium(ctx, from); err != nil {
		return time.Time{}, err
	}
	return expires, nil
}

// GrantPass gives a free user a cooldown-free pass. d <= 0 uses the default.
func (m *Manager) GrantPass(ctx context.Context, id int64, d time.Duration) (time.Time, error) {
	if d <= 0 {
		d = m.cfg.FreePass
	}
	until := m.now().Add(d)
	if err := m.store.GrantPass(ctx, id, until); err != nil {
		return time.Time{}, err
	}
	return until, nil
}

// Plan returns a user's standing.
func (m *Manager) Plan(ctx context.Context, id int64) (Plan, error) {
	plan := Plan{UserID: id, Tier: TierFree, Owner: m.IsOwner(id)}
	if plan.Owner {
		plan.Tier = TierPremium
	}

	p, err := m.store.GetPremium(ctx, id)
	switch {
	case err == nil:
		if p.ExpiresAt.After(m.now()) {
			plan.Tier = TierPremium
			plan.ExpiresAt = p.ExpiresAt
		}
	case !errors.Is(err, database.ErrNotFound):
		return plan, err
	}

	if until, err := m.store.PassExpiry(ctx, id); err == nil && until.After(m.now()) {
		plan.PassUntil = until
	}
	return plan, nil
}
