package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jholhewres/relaybot/pkg/relaybot/access"
	"github.com/jholhewres/relaybot/pkg/relaybot/channels"
	"github.com/jholhewres/relaybot/pkg/relaybot/database"
	"github.com/jholhewres/relaybot/pkg/relaybot/links"
	"github.com/jholhewres/relaybot/pkg/relaybot/mtproto"
	"github.com/jholhewres/relaybot/pkg/relaybot/relay"
)

const (
	owner int64 = 1
	user  int64 = 100
)

type sent struct {
	chatID  int64
	text    string
	photo   string
	buttons []channels.Button
}

type fakeMessenger struct {
	mu      sync.Mutex
	nextID  int
	sent    []sent
	edits   map[int]string
	deleted []int
	in      chan *channels.IncomingMessage

	// onSend runs after each Send, outside the lock.
	onSend func(chatID int64, text string)
}

func newFakeMessenger() *fakeMessenger {
	return &fakeMessenger{edits: map[int]string{}, in: make(chan *channels.IncomingMessage, 16)}
}

func (m *fakeMessenger) Send(_ context.Context, chatID int64, msg *channels.OutgoingMessage) (int, error) {
	m.mu.Lock()
	m.nextID++
	id := m.nextID
	m.sent = append(m.sent, sent{chatID: chatID, text: msg.Content, photo: msg.Photo, buttons: msg.Buttons})
	hook := m.onSend
	m.mu.Unlock()
	if hook != nil {
		hook(chatID, msg.Content)
	}
	return id, nil
}

func (m *fakeMessenger) Edit(_ context.Context, _ int64, id int, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.edits[id] = text
	return nil
}

func (m *fakeMessenger) Delete(_ context.Context, _ int64, id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *fakeMessenger) Receive() <-chan *channels.IncomingMessage { return m.in }

func (m *fakeMessenger) last() sent {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return sent{}
	}
	return m.sent[len(m.sent)-1]
}

func (m *fakeMessenger) texts(chatID int64) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, s := range m.sent {
		if s.chatID == chatID {
			out = append(out, s.text)
		}
	}
	return out
}

func (m *fakeMessenger) editOf(id int) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.edits[id]
}

func (m *fakeMessenger) wasDeleted(id int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Contains(m.deleted, id)
}

// fakeStore implements Store and access.Store in memory.
type fakeStore struct {
	mu       sync.Mutex
	sessions map[int64][]byte
	settings map[int64]database.Settings
	users    []int64
	premium  map[int64]database.PremiumUser
	passes   map[int64]time.Time
	stats    map[string]int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		sessions: map[int64][]byte{},
		settings: map[int64]database.Settings{},
		premium:  map[int64]database.PremiumUser{},
		passes:   map[int64]time.Time{},
		stats:    map[string]int64{},
	}
}

func (s *fakeStore) HasSession(_ context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[id]
	return ok, nil
}

func (s *fakeStore) SaveSession(_ context.Context, id int64, _ string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[id] = data
	return nil
}

func (s *fakeStore) DeleteSession(_ context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[id]
	delete(s.sessions, id)
	return ok, nil
}

func (s *fakeStore) GetSettings(_ context.Context, id int64) (database.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.settings[id]
	if !ok {
		return database.Settings{UserID: id}, nil
	}
	return st, nil
}

func (s *fakeStore) SaveSettings(_ context.Context, st database.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[st.UserID] = st
	return nil
}

func (s *fakeStore) ResetSettings(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.settings, id)
	return nil
}

func (s *fakeStore) TouchUser(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !slices.Contains(s.users, id) {
		s.users = append(s.users, id)
	}
	return nil
}

func (s *fakeStore) ListUsers(context.Context) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.users), nil
}

func (s *fakeStore) CountUsers(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.users)), nil
}

func (s *fakeStore) ListPremium(context.Context) ([]database.PremiumUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []database.PremiumUser
	for _, p := range s.premium {
		out = append(out, p)
	}
	return out, nil
}

func (s *fakeStore) IncrStat(_ context.Context, key string, delta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats[key] += delta
	return nil
}

func (s *fakeStore) Stats(context.Context) (map[string]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneStats(s.stats), nil
}

func cloneStats(m map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s *fakeStore) GetPremium(_ context.Context, id int64) (*database.PremiumUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.premium[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return &p, nil
}

func (s *fakeStore) AddPremium(_ context.Context, p database.PremiumUser) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.premium[p.UserID] = p
	return nil
}

func (s *fakeStore) RemovePremium(_ context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.premium[id]
	delete(s.premium, id)
	return ok, nil
}

func (s *fakeStore) PassExpiry(_ context.Context, id int64) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.passes[id]
	if !ok {
		return time.Time{}, database.ErrNotFound
	}
	return t, nil
}

func (s *fakeStore) GrantPass(_ context.Context, id int64, until time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.passes[id] = until
	return nil
}

type fakeFetcher struct {
	mu      sync.Mutex
	relayed []relay.Request
	err     error
	joinErr error
	joined  []string
	logouts int
}

func (f *fakeFetcher) Relay(_ context.Context, req relay.Request) (*relay.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.relayed = append(f.relayed, req)
	if f.err != nil {
		return nil, f.err
	}
	return &relay.Result{Kind: relay.MediaNone}, nil
}

func (f *fakeFetcher) Join(_ context.Context, _ int64, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joined = append(f.joined, hash)
	return f.joinErr
}

func (f *fakeFetcher) Logout(context.Context, int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logouts++
	return nil
}

func (f *fakeFetcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.relayed)
}

type fakeMembership struct {
	status channels.MemberStatus
	err    error
}

func (f *fakeMembership) MemberStatus(context.Context, int64, int64) (channels.MemberStatus, error) {
	return f.status, f.err
}

func (f *fakeMembership) InviteLink(context.Context, int64) (string, error) {
	return "https://t.me/+invite", nil
}

type harness struct {
	bot     *Bot
	msgr    *fakeMessenger
	store   *fakeStore
	fetcher *fakeFetcher
}

func newHarness(t *testing.T, mutate func(*Config, *Deps)) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	store := newFakeStore()
	h := &harness{msgr: newFakeMessenger(), store: store, fetcher: &fakeFetcher{}}

	cfg := DefaultConfig()
	cfg.Cooldown = time.Hour
	deps := Deps{
		Messenger: h.msgr,
		Store:     store,
		Access: access.NewManager(access.Config{
			Owners:        []int64{owner},
			FreemiumLimit: 2,
			PremiumLimit:  5,
		}, store, logger),
		Fetcher: h.fetcher,
	}
	if mutate != nil {
		mutate(&cfg, &deps)
	}
	h.bot = New(cfg, deps, logger)
	h.bot.sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	return h
}

func (h *harness) send(from int64, text string) {
	msg := &channels.IncomingMessage{
		ID:        1,
		ChatID:    from,
		From:      from,
		Content:   text,
		IsPrivate: true,
		Timestamp: time.Now(),
	}
	msg.Command, msg.Args = parseCommand(text)
	h.bot.handleMessage(context.Background(), msg)
}

func parseCommand(text string) (string, string) {
	if !strings.HasPrefix(text, "/") {
		return "", ""
	}
	cmd, args, _ := strings.Cut(text[1:], " ")
	return cmd, strings.TrimSpace(args)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestConversations(t *testing.T) {
	ctx := context.Background()

	t.Run("deliver", func(t *testing.T) {
		c := NewConversations()
		got := make(chan *channels.IncomingMessage, 1)
		go func() {
			msg, _ := c.Wait(ctx, 5, time.Second)
			got <- msg
		}()
		waitFor(t, func() bool { return c.Pending(5) })
		if !c.Deliver(&channels.IncomingMessage{ChatID: 5, Content: "hi"}) {
			t.Fatal("expected delivery")
		}
		if msg := <-got; msg == nil || msg.Content != "hi" {
			t.Errorf("got %+v", msg)
		}
		if c.Deliver(&channels.IncomingMessage{ChatID: 5}) {
			t.Error("second delivery should find nobody waiting")
		}
	})

	t.Run("timeout", func(t *testing.T) {
		c := NewConversations()
		if _, err := c.Wait(ctx, 5, 10*time.Millisecond); !errors.Is(err, ErrConversationTimeout) {
			t.Errorf("expected timeout, got %v", err)
		}
		if c.Pending(5) {
			t.Error("timed out question still pending")
		}
	})

	t.Run("cancel and busy", func(t *testing.T) {
		c := NewConversations()
		errc := make(chan error, 1)
		go func() {
			_, err := c.Wait(ctx, 5, time.Second)
			errc <- err
		}()
		waitFor(t, func() bool { return c.Pending(5) })
		if _, err := c.Wait(ctx, 5, time.Second); !errors.Is(err, ErrConversationBusy) {
			t.Errorf("expected busy, got %v", err)
		}
		if !c.Cancel(5) {
			t.Fatal("expected cancel")
		}
		if err := <-errc; !errors.Is(err, ErrConversationCancelled) {
			t.Errorf("expected cancelled, got %v", err)
		}
	})
}

func TestAskReplyBeforeWait(t *testing.T) {
	h := newHarness(t, nil)
	// The user answers while the prompt is still being sent.
	h.msgr.onSend = func(chatID int64, text string) {
		if text == "Your phone?" {
			if !h.bot.convos.Deliver(&channels.IncomingMessage{ChatID: chatID, Content: " +15550001 "}) {
				t.Error("reply arrived before the question was registered")
			}
		}
	}

	got, err := h.bot.ask(context.Background(), user, "Your phone?", time.Second)
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if got != "+15550001" {
		t.Errorf("got %q", got)
	}
	if h.bot.convos.Pending(user) {
		t.Error("answered question still pending")
	}

	q, err := h.bot.convos.Open(user)
	if err != nil {
		t.Fatal(err)
	}
	defer q.Close()
	if _, err := h.bot.ask(context.Background(), user, "again", time.Second); !errors.Is(err, ErrConversationBusy) {
		t.Errorf("ask with an open question = %v, want busy", err)
	}
}

func TestSingleLink(t *testing.T) {
	h := newHarness(t, nil)

	h.send(user, "https://t.me/c/123456/42")
	if h.fetcher.count() != 1 {
		t.Fatalf("expected one relay, got %d", h.fetcher.count())
	}
	req := h.fetcher.relayed[0]
	if req.UserID != user || req.Link.Kind != links.KindPrivate || req.Link.MessageID != 42 {
		t.Errorf("unexpected request %+v", req)
	}
	if !h.msgr.wasDeleted(req.StatusMsgID) {
		t.Error("status message not deleted after success")
	}

	h.send(user, "https://t.me/c/123456/43")
	if h.fetcher.count() != 1 {
		t.Error("free user relayed during cooldown")
	}
	if got := h.msgr.last().text; !strings.HasPrefix(got, "Please wait 3600 seconds") {
		t.Errorf("expected cooldown text, got %q", got)
	}
}

func TestSingleLinkPremiumSkipsCooldown(t *testing.T) {
	h := newHarness(t, nil)
	h.send(owner, "/add 100 1 day")

	h.send(user, "https://t.me/somechannel/1")
	h.send(user, "https://t.me/somechannel/2")
	if h.fetcher.count() != 2 {
		t.Errorf("premium user should not be limited, relayed %d", h.fetcher.count())
	}
}

func TestSingleLinkErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"not found", relay.ErrMessageNotFound, textNotFound},
		{"empty", relay.ErrEmptyMessage, textEmpty},
		{"no session", mtproto.ErrNoSession, textNoSession},
		{"flood", &relay.FloodWaitError{Wait: 30 * time.Second}, fmt.Sprintf(textFloodWait, 30)},
		{"other", errors.New("boom"), "**Error:** boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			h.fetcher.err = tt.err
			h.send(user, "https://t.me/somechannel/7")

			status := h.fetcher.relayed[0].StatusMsgID
			if got := h.msgr.editOf(status); !strings.Contains(got, tt.want) {
				t.Errorf("status = %q, want %q", got, tt.want)
			}
			if h.msgr.wasDeleted(status) {
				t.Error("status with error must stay visible")
			}
			if left, _ := h.bot.deps.Cooldown.Remaining(context.Background(), user); left != 0 {
				t.Error("failed link started a cooldown")
			}
		})
	}
}

func TestOngoingProcess(t *testing.T) {
	h := newHarness(t, nil)
	_, done, err := h.bot.deps.Tracker.Begin(context.Background(), user)
	if err != nil {
		t.Fatal(err)
	}
	defer done()

	h.send(user, "https://t.me/somechannel/1")
	if h.fetcher.count() != 0 || h.msgr.last().text != textOngoing {
		t.Errorf("expected ongoing refusal, got %q", h.msgr.last().text)
	}

	h.send(user, "/cancel")
	if h.msgr.last().text != textCancelled {
		t.Errorf("expected cancel confirmation, got %q", h.msgr.last().text)
	}
	h.send(user, "/cancel")
	if h.msgr.last().text != textNothingToCancel {
		t.Errorf("got %q", h.msgr.last().text)
	}
}

func TestFreeServiceClosed(t *testing.T) {
	h := newHarness(t, func(_ *Config, d *Deps) {
		d.Access = access.NewManager(access.Config{Owners: []int64{owner}}, d.Store.(*fakeStore), nil)
	})
	h.send(user, "https://t.me/somechannel/1")
	if h.msgr.last().text != textFreeUnavailable {
		t.Errorf("got %q", h.msgr.last().text)
	}

	h.send(owner, "/freepass 100")
	h.send(user, "https://t.me/somechannel/1")
	if h.fetcher.count() != 1 {
		t.Error("verified user should be served while the free tier is closed")
	}
}

func TestBatch(t *testing.T) {
	h := newHarness(t, nil)

	h.send(user, "/done")
	if h.msgr.last().text != textNoBatch {
		t.Errorf("got %q", h.msgr.last().text)
	}

	h.send(user, "/batch")
	if h.msgr.last().text != textBatchOn {
		t.Fatalf("got %q", h.msgr.last().text)
	}
	h.send(user, "https://t.me/somechannel/1")
	h.send(user, "https://t.me/somechannel/2")
	h.send(user, "https://t.me/somechannel/3")
	if got := h.msgr.last().text; got != fmt.Sprintf(textBatchFull, 2) {
		t.Errorf("expected batch full, got %q", got)
	}
	if h.fetcher.count() != 0 {
		t.Fatal("links relayed before /done")
	}

	h.fetcher.err = nil
	h.send(user, "/done")
	if h.fetcher.count() != 2 {
		t.Fatalf("expected 2 relays, got %d", h.fetcher.count())
	}
	if h.bot.deps.Batches.Active(user) {
		t.Error("batch still active after /done")
	}
}

func TestBatchFailureReported(t *testing.T) {
	h := newHarness(t, nil)
	h.fetcher.err = errors.New("nope")

	h.send(user, "/batch")
	h.send(user, "https://t.me/somechannel/1")
	h.send(user, "/done")

	want := fmt.Sprintf(textBatchLinkFail, "https://t.me/somechannel/1", "nope")
	if !slices.Contains(h.msgr.texts(user), want) {
		t.Errorf("missing %q in %q", want, h.msgr.texts(user))
	}
}

func TestJoin(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, textJoined},
		{&mtproto.JoinError{Kind: mtproto.JoinAlreadyMember}, textAlreadyMember},
		{&mtproto.JoinError{Kind: mtproto.JoinInvalidInvite}, textJoinInvalid},
		{errors.New("other"), textJoinFailed},
	}
	for _, tt := range tests {
		h := newHarness(t, nil)
		h.fetcher.joinErr = tt.err
		h.send(user, "/join https://t.me/+AbCdEf123")
		if got := h.msgr.last().text; got != tt.want {
			t.Errorf("join(%v) = %q, want %q", tt.err, got, tt.want)
		}
		if len(h.fetcher.joined) != 1 || h.fetcher.joined[0] != "AbCdEf123" {
			t.Errorf("joined %v", h.fetcher.joined)
		}
	}
}

func TestLogin(t *testing.T) {
	var gotPhone, gotCode string
	h := newHarness(t, func(_ *Config, d *Deps) {
		d.Login = func(ctx context.Context, phone string, p mtproto.Prompter) (*mtproto.LoginResult, error) {
			gotPhone = phone
			code, err := p.Code(ctx)
			if err != nil {
				return nil, &mtproto.PromptError{Step: "code", Err: err}
			}
			gotCode = code
			return &mtproto.LoginResult{Session: []byte("session"), UserID: user, Phone: phone}, nil
		}
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.send(user, "/login")
	}()

	waitFor(t, func() bool { return h.bot.convos.Pending(user) })
	h.send(user, "+19876543210")
	waitFor(t, func() bool { return h.msgr.last().text == textAskOTP && h.bot.convos.Pending(user) })
	h.send(user, "1 2 3 4 5")
	<-done

	if gotPhone != "+19876543210" || gotCode != "12345" {
		t.Errorf("phone %q code %q", gotPhone, gotCode)
	}
	if string(h.store.sessions[user]) != "session" {
		t.Error("session not saved")
	}
	if h.msgr.last().text != textLoginOK {
		t.Errorf("got %q", h.msgr.last().text)
	}
	if h.store.stats[database.StatLogins] != 1 {
		t.Error("login not counted")
	}

	h.send(user, "/logout")
	if h.msgr.last().text != textLoggedOut || h.fetcher.logouts != 1 {
		t.Errorf("logout: %q, remote logouts %d", h.msgr.last().text, h.fetcher.logouts)
	}
	h.send(user, "/logout")
	if h.msgr.last().text != textLoggedOutNone {
		t.Errorf("got %q", h.msgr.last().text)
	}
}

func TestLoginTimeoutAndCancel(t *testing.T) {
	h := newHarness(t, func(c *Config, d *Deps) {
		c.PhoneTimeout = 20 * time.Millisecond
		d.Login = func(context.Context, string, mtproto.Prompter) (*mtproto.LoginResult, error) {
			t.Error("login must not start without a phone number")
			return nil, errors.New("unreachable")
		}
	})
	h.send(user, "/login")
	if h.msgr.last().text != textOTPTimeout {
		t.Errorf("got %q", h.msgr.last().text)
	}

	h.bot.cfg.PhoneTimeout = time.Second
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.send(user, "/login")
	}()
	waitFor(t, func() bool { return h.bot.convos.Pending(user) })
	h.send(user, "/cancel")
	<-done
	if h.msgr.last().text != textLoginCancel {
		t.Errorf("got %q", h.msgr.last().text)
	}
}

func TestLoginErrorText(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&mtproto.LoginError{Kind: mtproto.LoginInvalidCode}, textBadOTP},
		{&mtproto.LoginError{Kind: mtproto.LoginInvalidPassword}, textBadPassword},
		{&mtproto.LoginError{Kind: mtproto.LoginFloodWait, Wait: 90 * time.Second}, fmt.Sprintf(textLoginFlood, 90)},
		{&mtproto.PromptError{Step: "password", Err: ErrConversationTimeout}, text2FATimeout},
		{&mtproto.PromptError{Step: "code", Err: ErrConversationTimeout}, textOTPTimeout},
		{&mtproto.PromptError{Step: "code", Err: ErrConversationCancelled}, textLoginCancel},
		{errors.New("x"), textLoginFailed},
	}
	for _, tt := range tests {
		if got := loginErrorText(tt.err); got != tt.want {
			t.Errorf("loginErrorText(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestOwnerCommands(t *testing.T) {
	h := newHarness(t, nil)

	h.send(user, "/add 200")
	if h.msgr.last().text != textOwnerOnly {
		t.Errorf("got %q", h.msgr.last().text)
	}

	h.send(owner, "/add 200 2 days")
	p, ok := h.store.premium[200]
	if !ok {
		t.Fatal("premium not added")
	}
	if left := time.Until(p.ExpiresAt); left < 47*time.Hour || left > 49*time.Hour {
		t.Errorf("unexpected expiry in %s", left)
	}
	if !strings.HasPrefix(h.msgr.texts(200)[0], "💎 You are now premium") {
		t.Error("user not notified")
	}

	h.send(owner, "/add 200 2 fortnights")
	if !strings.HasPrefix(h.msgr.last().text, "❌ Invalid duration") {
		t.Errorf("got %q", h.msgr.last().text)
	}

	h.send(owner, "/rem 200")
	if h.msgr.last().text != fmt.Sprintf(textRemOK, 200) {
		t.Errorf("got %q", h.msgr.last().text)
	}
	h.send(owner, "/rem 200")
	if h.msgr.last().text != fmt.Sprintf(textRemNone, 200) {
		t.Errorf("got %q", h.msgr.last().text)
	}

	h.send(owner, "/rem")
	if h.msgr.last().text != textRemUsage {
		t.Errorf("got %q", h.msgr.last().text)
	}
}

func TestFreePassClearsCooldown(t *testing.T) {
	h := newHarness(t, nil)
	h.send(user, "https://t.me/somechannel/1")
	h.send(owner, "/freepass 100 1 hour")

	if until, ok := h.store.passes[user]; !ok || time.Until(until) < 59*time.Minute {
		t.Fatalf("pass not granted: %v", until)
	}
	h.send(user, "https://t.me/somechannel/2")
	if h.fetcher.count() != 2 {
		t.Error("verified user still in cooldown")
	}
}

func TestStatsAndBroadcast(t *testing.T) {
	h := newHarness(t, nil)
	h.send(user, "/start")
	h.send(200, "/start")
	h.store.stats[database.StatMessages] = 3

	h.send(owner, "/stats")
	got := h.msgr.last().text
	if !strings.Contains(got, "Users: 3") || !strings.Contains(got, "Messages relayed: 3") {
		t.Errorf("stats = %q", got)
	}

	h.send(owner, "/broadcast hello all")
	for _, id := range []int64{user, 200} {
		if !slices.Contains(h.msgr.texts(id), "hello all") {
			t.Errorf("user %d missed broadcast", id)
		}
	}
}

func TestSettingsCommands(t *testing.T) {
	h := newHarness(t, nil)

	h.send(user, "/setchat -1001234")
	h.send(user, "/setcaption made by me")
	h.send(user, "/setrename @tag")
	h.send(user, "/setclean foo bar")

	st := h.store.settings[user]
	if st.ChatID != -1001234 || st.Caption != "made by me" || st.RenameTag != "@tag" || len(st.CleanWords) != 2 {
		t.Errorf("settings = %+v", st)
	}

	h.send(user, "/settings")
	if !strings.Contains(h.msgr.last().text, "foo, bar") {
		t.Errorf("got %q", h.msgr.last().text)
	}

	h.send(user, "/setchat abc")
	if h.msgr.last().text != textSetChatBad {
		t.Errorf("got %q", h.msgr.last().text)
	}

	h.send(user, "/reset")
	if _, ok := h.store.settings[user]; ok {
		t.Error("settings not reset")
	}
}

func TestTransferAndPlan(t *testing.T) {
	h := newHarness(t, nil)

	h.send(user, "/transfer 300")
	if h.msgr.last().text != textTransferNone {
		t.Errorf("got %q", h.msgr.last().text)
	}

	h.send(owner, "/add 100 1 month")
	h.send(user, "/myplan")
	if !strings.HasPrefix(h.msgr.last().text, "💎 **Premium**") {
		t.Errorf("got %q", h.msgr.last().text)
	}

	h.send(user, "/transfer 100")
	if h.msgr.last().text != textTransferSelf {
		t.Errorf("got %q", h.msgr.last().text)
	}
	h.send(user, "/transfer 300")
	if _, ok := h.store.premium[300]; !ok {
		t.Error("plan not transferred")
	}
	if _, ok := h.store.premium[user]; ok {
		t.Error("sender kept the plan")
	}
	if len(h.msgr.texts(300)) != 1 {
		t.Error("recipient not notified")
	}

	h.send(user, "/myplan")
	if !strings.HasPrefix(h.msgr.last().text, "🆓 **Free plan**") {
		t.Errorf("got %q", h.msgr.last().text)
	}
}

func TestForceSubscribe(t *testing.T) {
	tests := []struct {
		status   channels.MemberStatus
		err      error
		relayed  bool
		wantText string
	}{
		{channels.StatusMember, nil, true, ""},
		{channels.StatusLeft, nil, false, textJoinChannel},
		{channels.StatusKicked, nil, false, "You are Banned. Contact -- Team SPY"},
		{"", errors.New("api down"), false, "Something Went Wrong. Contact us Team SPY..."},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			h := newHarness(t, func(c *Config, d *Deps) {
				c.ForceSub.ChannelID = -100500
				d.Membership = &fakeMembership{status: tt.status, err: tt.err}
			})
			h.send(user, "https://t.me/somechannel/1")
			if got := h.fetcher.count() == 1; got != tt.relayed {
				t.Fatalf("relayed = %v", got)
			}
			if tt.wantText != "" && h.msgr.last().text != tt.wantText {
				t.Errorf("got %q", h.msgr.last().text)
			}
			if tt.status == channels.StatusLeft {
				last := h.msgr.last()
				if last.photo == "" || len(last.buttons) != 1 || last.buttons[0].URL != "https://t.me/+invite" {
					t.Errorf("join prompt = %+v", last)
				}
			}
		})
	}

	t.Run("owner skips", func(t *testing.T) {
		h := newHarness(t, func(c *Config, d *Deps) {
			c.ForceSub.ChannelID = -100500
			d.Membership = &fakeMembership{status: channels.StatusLeft}
		})
		h.send(owner, "https://t.me/somechannel/1")
		if h.fetcher.count() != 1 {
			t.Error("owner should bypass force-subscribe")
		}
	})
}

func TestIgnoresGroupsAndPlainText(t *testing.T) {
	h := newHarness(t, nil)
	h.bot.handleMessage(context.Background(), &channels.IncomingMessage{
		ChatID: -100, From: user, Content: "https://t.me/somechannel/1",
	})
	h.send(user, "just chatting")
	if h.fetcher.count() != 0 || len(h.msgr.texts(user)) != 0 {
		t.Error("expected no reaction")
	}
}

func TestRun(t *testing.T) {
	h := newHarness(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- h.bot.Run(ctx) }()

	h.msgr.in <- &channels.IncomingMessage{ChatID: user, From: user, Command: "start", Content: "/start", IsPrivate: true}
	waitFor(t, func() bool { return h.msgr.last().text == textStart })
	cancel()
	if err := <-errc; err != nil {
		t.Errorf("Run returned %v", err)
	}
}

func TestParseTarget(t *testing.T) {
	id, d, err := parseTarget("42 3 hours")
	if err != nil || id != 42 || d != 3*time.Hour {
		t.Errorf("got %d %s %v", id, d, err)
	}
	if id, d, err = parseTarget("42"); err != nil || id != 42 || d != 0 {
		t.Errorf("got %d %s %v", id, d, err)
	}
	if _, _, err = parseTarget("abc"); err == nil {
		t.Error("expected error for bad id")
	}
}
