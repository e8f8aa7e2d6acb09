package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

// PremiumUser is a user with a paid plan.
type PremiumUser struct {
	UserID    int64
	ExpiresAt time.Time
	AddedBy   int64
	CreatedAt time.Time
}

// Settings are per-user relay preferences.
type Settings struct {
	UserID int64

	// ChatID is the destination chat; 0 means the requesting chat.
	ChatID int64

	// Caption replaces the source caption when set.
	Caption string

	// RenameTag is appended to relayed file names.
	RenameTag string

	// CleanWords are removed from captions and file names.
	CleanWords []string
}

// Stat keys.
const (
	StatMessages = "messages_relayed"
	StatBytes    = "bytes_relayed"
	StatLogins   = "logins"
	StatYouTube  = "youtube_downloads"
)

// Store is the relay persistence layer.
type Store struct {
	backend *Backend
	db      *sql.DB
	sealer  *Sealer
	now     func() time.Time
}

// NewStore wraps an open backend. sessionKey encrypts session strings and
// must not be empty.
func NewStore(backend *Backend, sessionKey string) (*Store, error) {
	sealer, err := NewSealer(sessionKey)
	if err != nil {
		return nil, fmt.Errorf("init session sealer: %w", err)
	}
	return &Store{backend: backend, db: backend.DB, sealer: sealer, now: time.Now}, nil
}

// Backend returns the underlying backend.
func (s *Store) Backend() *Backend { return s.backend }

// Migrate brings the schema to the latest version.
func (s *Store) Migrate(ctx context.Context) error {
	if s.backend.Migrator == nil {
		return fmt.Errorf("no migrator for %s backend", s.backend.Type)
	}
	return s.backend.Migrator.Migrate(ctx, 0)
}

// Close closes the database.
func (s *Store) Close() error { return s.backend.Close() }

// rebind converts ? placeholders to $n for PostgreSQL.
func (s *Store) rebind(query string) string {
	if s.backend.Type != BackendPostgreSQL {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.rebind(query), args...)
}

func (s *Store) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, s.rebind(query), args...)
}

// ---------- Sessions ----------

// SaveSession stores (or replaces) the encrypted session of a user. An empty
// phone keeps the one already stored.
func (s *Store) SaveSession(ctx context.Context, userID int64, phone string, session []byte) error {
	sealed, err := s.sealer.Seal(session)
	if err != nil {
		return fmt.Errorf("seal session: %w", err)
	}
	now := s.now().Unix()
	_, err = s.exec(ctx, `
		INSERT INTO sessions (user_id, session, phone, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			session = excluded.session,
			phone = COALESCE(NULLIF(excluded.phone, ''), sessions.phone),
			updated_at = excluded.updated_at`,
		userID, sealed, phone, now, now)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// LoadSession returns the decrypted session of a user.
func (s *Store) LoadSession(ctx context.Context, userID int64) ([]byte, error) {
	var sealed string
	err := s.queryRow(ctx, "SELECT session FROM sessions WHERE user_id = ?", userID).Scan(&sealed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	return s.sealer.Open(sealed)
}

// HasSession reports whether a session is stored for the user.
func (s *Store) HasSession(ctx context.Context, userID int64) (bool, error) {
	var n int
	err := s.queryRow(ctx, "SELECT COUNT(*) FROM sessions WHERE user_id = ?", userID).Scan(&n)
	return n > 0, err
}

// CountSessions returns the number of stored sessions.
func (s *Store) CountSessions(ctx context.Context) (int64, error) {
	var n int64
	err := s.queryRow(ctx, "SELECT COUNT(*) FROM sessions").Scan(&n)
	return n, err
}

// DeleteSession removes a session. It reports whether one existed.
func (s *Store) DeleteSession(ctx context.Context, userID int64) (bool, error) {
	res, err := s.exec(ctx, "DELETE FROM sessions WHERE user_id = ?", userID)
	if err != nil {
		return false, fmt.Errorf("delete session: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ---------- Premium ----------

// AddPremium creates or extends a premium plan.
func (s *Store) AddPremium(ctx context.Context, p PremiumUser) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now()
	}
	_, err := s.exec(ctx, `
		INSERT INTO premium_users (user_id, expires_at, added_by, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET expires_at = excluded.expires_at, added_by = excluded.added_by`,
		p.UserID, p.ExpiresAt.Unix(), p.AddedBy, p.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("add premium: %w", err)
	}
	return nil
}

// RemovePremium deletes a plan. It reports whether one existed.
func (s *Store) RemovePremium(ctx context.Context, userID int64) (bool, error) {
	res, err := s.exec(ctx, "DELETE FROM premium_users WHERE user_id = ?", userID)
	if err != nil {
		return false, fmt.Errorf("remove premium: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// GetPremium returns the plan of a user, or ErrNotFound.
func (s *Store) GetPremium(ctx context.Context, userID int64) (*PremiumUser, error) {
	var p PremiumUser
	var expires, created int64
	err := s.queryRow(ctx,
		"SELECT user_id, expires_at, added_by, created_at FROM premium_users WHERE user_id = ?", userID).
		Scan(&p.UserID, &expires, &p.AddedBy, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get premium: %w", err)
	}
	p.ExpiresAt = time.Unix(expires, 0)
	p.CreatedAt = time.Unix(created, 0)
	return &p, nil
}

// ListPremium returns all plans ordered by expiry.
func (s *Store) ListPremium(ctx context.Context) ([]PremiumUser, error) {
	return s.queryPremium(ctx, "SELECT user_id, expires_at, added_by, created_at FROM premium_users ORDER BY expires_at")
}

// ExpiredPremium returns plans that expired at or before now.
func (s *Store) ExpiredPremium(ctx context.Context, now time.Time) ([]PremiumUser, error) {
	return s.queryPremium(ctx,
		"SELECT user_id, expires_at, added_by, created_at FROM premium_users WHERE expires_at <= ? ORDER BY expires_at",
		now.Unix())
}

func (s *Store) queryPremium(ctx context.Context, query string, args ...any) ([]PremiumUser, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query premium: %w", err)
	}
	defer rows.Close()

	var out []PremiumUser
	for rows.Next() {
		var p PremiumUser
		var expires, created int64
		if err := rows.Scan(&p.UserID, &expires, &p.AddedBy, &created); err != nil {
			return nil, err
		}
		p.ExpiresAt = time.Unix(expires, 0)
		p.CreatedAt = time.Unix(created, 0)
		out = append(out, p)
	}
	return out, rows.Err()
}

// ---------- Free passes ----------

// GrantPass exempts a user from the cooldown until the given time.
func (s *Store) GrantPass(ctx context.Context, userID int64, until time.Time) error {
	_, err := s.exec(ctx, `
		INSERT INTO free_passes (user_id, expires_at) VALUES (?, ?)
		ON CONFLICT (user_id) DO UPDATE SET expires_at = excluded.expires_at`,
		userID, until.Unix())
	if err != nil {
		return fmt.Errorf("grant pass: %w", err)
	}
	return nil
}

// PassExpiry returns when the user's pass ends, or ErrNotFound.
func (s *Store) PassExpiry(ctx context.Context, userID int64) (time.Time, error) {
	var expires int64
	err := s.queryRow(ctx, "SELECT expires_at FROM free_passes WHERE user_id = ?", userID).Scan(&expires)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, ErrNotFound
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("get pass: %w", err)
	}
	return time.Unix(expires, 0), nil
}

// PurgePasses deletes passes that ended before now.
func (s *Store) PurgePasses(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.exec(ctx, "DELETE FROM free_passes WHERE expires_at <= ?", now.Unix())
	if err != nil {
		return 0, fmt.Errorf("purge passes: %w", err)
	}
	return res.RowsAffected()
}

// ---------- Settings ----------

// GetSettings returns the settings of a user. Missing rows yield defaults.
func (s *Store) GetSettings(ctx context.Context, userID int64) (Settings, error) {
	st := Settings{UserID: userID}
	var words string
	err := s.queryRow(ctx,
		"SELECT chat_id, caption, rename_tag, clean_words FROM user_settings WHERE user_id = ?", userID).
		Scan(&st.ChatID, &st.Caption, &st.RenameTag, &words)
	if errors.Is(err, sql.ErrNoRows) {
		return st, nil
	}
	if err != nil {
		return st, fmt.Errorf("get settings: %w", err)
	}
	if words != "" {
		if err := json.Unmarshal([]byte(words), &st.CleanWords); err != nil {
			return st, fmt.Errorf("decode clean words: %w", err)
		}
	}
	return st, nil
}

// SaveSettings stores the settings of a user.
func (s *Store) SaveSettings(ctx context.Context, st Settings) error {
	words, err := json.Marshal(st.CleanWords)
	if err != nil {
		return err
	}
	if st.CleanWords == nil {
		words = []byte("[]")
	}
	_, err = s.exec(ctx, `
		INSERT INTO user_settings (user_id, chat_id, caption, rename_tag, clean_words, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET chat_id = excluded.chat_id, caption = excluded.caption,
			rename_tag = excluded.rename_tag, clean_words = excluded.clean_words, updated_at = excluded.updated_at`,
		st.UserID, st.ChatID, st.Caption, st.RenameTag, string(words), s.now().Unix())
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

// ResetSettings removes all settings of a user.
func (s *Store) ResetSettings(ctx context.Context, userID int64) error {
	if _, err := s.exec(ctx, "DELETE FROM user_settings WHERE user_id = ?", userID); err != nil {
		return fmt.Errorf("reset settings: %w", err)
	}
	return nil
}

// ---------- Users and stats ----------

// TouchUser records that a user interacted with the bot.
func (s *Store) TouchUser(ctx context.Context, userID int64) error {
	now := s.now().Unix()
	_, err := s.exec(ctx, `
		INSERT INTO users (user_id, first_seen, last_seen) VALUES (?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET last_seen = excluded.last_seen`,
		userID, now, now)
	return err
}

// ListUsers returns all known user IDs.
func (s *Store) ListUsers(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT user_id FROM users ORDER BY user_id")
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CountUsers returns the number of known users.
func (s *Store) CountUsers(ctx context.Context) (int64, error) {
	var n int64
	err := s.queryRow(ctx, "SELECT COUNT(*) FROM users").Scan(&n)
	return n, err
}

// IncrStat adds delta to a counter.
func (s *Store) IncrStat(ctx context.Context, key string, delta int64) error {
	_, err := s.exec(ctx, `
		INSERT INTO stats (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = stats.value + excluded.value`,
		key, delta)
	return err
}

// Stats returns all counters.
func (s *Store) Stats(ctx context.Context) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT key, value FROM stats")
	if err != nil {
		return nil, fmt.Errorf("read stats: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var k string
		var v int64
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}
