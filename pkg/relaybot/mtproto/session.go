package mtproto

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/gotd/td/session"
)

// SessionStore persists raw session data per user.
type SessionStore interface {
	LoadSession(ctx context.Context, userID int64) ([]byte, error)
	SaveSession(ctx context.Context, userID int64, phone string, data []byte) error
}

// DBStorage is a session.Storage backed by the relay store. Sessions are
// written back when the server migrates or renews auth keys.
type DBStorage struct {
	store    SessionStore
	userID   int64
	phone    string
	notFound func(error) bool
}

// NewDBStorage returns the session storage of one user. notFound reports
// whether an error from store means "no session".
func NewDBStorage(store SessionStore, userID int64, phone string, notFound func(error) bool) *DBStorage {
	return &DBStorage{store: store, userID: userID, phone: phone, notFound: notFound}
}

// LoadSession implements session.Storage.
func (s *DBStorage) LoadSession(ctx context.Context) ([]byte, error) {
	data, err := s.store.LoadSession(ctx, s.userID)
	if err != nil {
		if s.notFound != nil && s.notFound(err) {
			return nil, session.ErrNotFound
		}
		return nil, err
	}
	if len(data) == 0 {
		return nil, session.ErrNotFound
	}
	return data, nil
}

// StoreSession implements session.Storage.
func (s *DBStorage) StoreSession(ctx context.Context, data []byte) error {
	return s.store.SaveSession(ctx, s.userID, s.phone, data)
}

// MemoryStorage keeps a session in memory. Login uses it to capture the
// session produced by a fresh sign in.
type MemoryStorage struct {
	mu   sync.Mutex
	data []byte
}

// NewMemoryStorage returns storage preloaded with data (may be nil).
func NewMemoryStorage(data []byte) *MemoryStorage {
	return &MemoryStorage{data: append([]byte(nil), data...)}
}

// LoadSession implements session.Storage.
func (m *MemoryStorage) LoadSession(context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.data) == 0 {
		return nil, session.ErrNotFound
	}
	return append([]byte(nil), m.data...), nil
}

// StoreSession implements session.Storage.
func (m *MemoryStorage) StoreSession(_ context.Context, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = append([]byte(nil), data...)
	return nil
}

// Bytes returns a copy of the stored session.
func (m *MemoryStorage) Bytes() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.data...)
}

// ErrBadSessionString is returned by DecodeString for malformed input.
var ErrBadSessionString = errors.New("malformed session string")

const sessionPrefix = "rb1:"

// EncodeString turns session data into a string that can be pasted into a
// config file.
func EncodeString(data []byte) string {
	return sessionPrefix + base64.RawURLEncoding.EncodeToString(data)
}

// DecodeString reverses EncodeString. It also accepts plain base64 of the
// session JSON, with or without padding.
func DecodeString(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if rest, ok := strings.CutPrefix(s, sessionPrefix); ok {
		data, err := base64.RawURLEncoding.DecodeString(rest)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadSessionString, err)
		}
		if len(data) == 0 {
			return nil, ErrBadSessionString
		}
		return data, nil
	}

	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		data, err := enc.DecodeString(s)
		if err == nil && json.Valid(data) && bytes.HasPrefix(bytes.TrimSpace(data), []byte("{")) {
			return data, nil
		}
	}
	return nil, ErrBadSessionString
}
