package mtproto

import (
	"context"
	"encoding/base64"
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/gotd/td/session"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"

	"github.com/jholhewres/relaybot/pkg/relaybot/relay"
)

var errMissing = errors.New("missing")

type memSessions struct {
	data  map[int64][]byte
	phone map[int64]string
}

func (m *memSessions) LoadSession(_ context.Context, id int64) ([]byte, error) {
	d, ok := m.data[id]
	if !ok {
		return nil, errMissing
	}
	return d, nil
}

func (m *memSessions) SaveSession(_ context.Context, id int64, phone string, d []byte) error {
	m.data[id] = d
	m.phone[id] = phone
	return nil
}

func TestDBStorage(t *testing.T) {
	store := &memSessions{data: map[int64][]byte{}, phone: map[int64]string{}}
	s := NewDBStorage(store, 42, "+100", func(err error) bool { return errors.Is(err, errMissing) })
	ctx := context.Background()

	if _, err := s.LoadSession(ctx); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("expected session.ErrNotFound, got %v", err)
	}
	if err := s.StoreSession(ctx, []byte(`{"v":1}`)); err != nil {
		t.Fatal(err)
	}
	got, err := s.LoadSession(ctx)
	if err != nil || string(got) != `{"v":1}` {
		t.Fatalf("LoadSession = %q, %v", got, err)
	}
	if store.phone[42] != "+100" {
		t.Errorf("phone not stored: %q", store.phone[42])
	}
}

func TestMemoryStorage(t *testing.T) {
	m := NewMemoryStorage(nil)
	if _, err := m.LoadSession(context.Background()); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("empty storage should report not found, got %v", err)
	}
	in := []byte("abc")
	m.StoreSession(context.Background(), in)
	in[0] = 'x'
	if string(m.Bytes()) != "abc" {
		t.Error("storage must copy its input")
	}
}

func TestSessionString(t *testing.T) {
	data := []byte(`{"Version":1,"Data":{"DC":2}}`)
	s := EncodeString(data)
	if !strings.HasPrefix(s, "rb1:") {
		t.Fatalf("unexpected prefix: %s", s)
	}
	got, err := DecodeString("  " + s + "\n")
	if err != nil || string(got) != string(data) {
		t.Fatalf("DecodeString = %q, %v", got, err)
	}

	t.Run("plain base64", func(t *testing.T) {
		for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding} {
			got, err := DecodeString(enc.EncodeToString(data))
			if err != nil || string(got) != string(data) {
				t.Errorf("DecodeString(plain) = %q, %v", got, err)
			}
		}
	})

	notJSON := base64.StdEncoding.EncodeToString([]byte("not a session"))
	for _, bad := range []string{"", "rb1:", "1BVtsOK8Bu", "rb1:!!!", notJSON} {
		if _, err := DecodeString(bad); !errors.Is(err, ErrBadSessionString) {
			t.Errorf("DecodeString(%q) should fail, got %v", bad, err)
		}
	}
}

func TestUserbotsStorageFallback(t *testing.T) {
	store := &memSessions{data: map[int64][]byte{7: []byte("own")}, phone: map[int64]string{}}
	notFound := func(err error) bool { return errors.Is(err, errMissing) }
	ctx := context.Background()

	u, err := NewUserbots(Config{}, store, notFound, "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := u.storageFor(ctx, 8); !errors.Is(err, ErrNoSession) {
		t.Errorf("expected ErrNoSession, got %v", err)
	}
	if _, own, err := u.storageFor(ctx, 7); err != nil || !own {
		t.Errorf("stored session should be used, own=%v err=%v", own, err)
	}

	u, err = NewUserbots(Config{}, store, notFound, EncodeString([]byte("shared")), nil)
	if err != nil {
		t.Fatal(err)
	}
	st, own, err := u.storageFor(ctx, 8)
	if err != nil || own {
		t.Fatalf("default session expected, own=%v err=%v", own, err)
	}
	data, _ := st.LoadSession(ctx)
	if string(data) != "shared" {
		t.Errorf("default session = %q", data)
	}

	if _, err := NewUserbots(Config{}, store, notFound, "garbage", nil); err == nil {
		t.Error("bad default session should be rejected")
	}
}

func TestClassifyLogin(t *testing.T) {
	tests := []struct {
		err  error
		kind LoginErrorKind
	}{
		{tgerr.New(400, "PHONE_NUMBER_INVALID"), LoginInvalidPhone},
		{tgerr.New(400, "API_ID_INVALID"), LoginInvalidAPI},
		{tgerr.New(400, "PHONE_CODE_INVALID"), LoginInvalidCode},
		{tgerr.New(400, "PHONE_CODE_EMPTY"), LoginInvalidCode},
		{tgerr.New(400, "PHONE_CODE_EXPIRED"), LoginCodeExpired},
		{tgerr.New(400, "PASSWORD_HASH_INVALID"), LoginInvalidPassword},
		{tgerr.New(420, "FLOOD_WAIT_30"), LoginFloodWait},
		{errors.New("boom"), LoginFailed},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			var le *LoginError
			if !errors.As(classifyLogin(tt.err), &le) {
				t.Fatal("expected *LoginError")
			}
			if le.Kind != tt.kind {
				t.Errorf("kind = %d, want %d", le.Kind, tt.kind)
			}
			if tt.kind == LoginFloodWait && le.Wait != 30*time.Second {
				t.Errorf("wait = %s", le.Wait)
			}
		})
	}
}

func TestClassifyJoin(t *testing.T) {
	tests := map[string]JoinErrorKind{
		"USER_ALREADY_PARTICIPANT": JoinAlreadyMember,
		"INVITE_HASH_EXPIRED":      JoinInvalidInvite,
		"INVITE_HASH_INVALID":      JoinInvalidInvite,
		"INVITE_REQUEST_SENT":      JoinRequestSent,
		"CHANNELS_TOO_MUCH":        JoinFailed,
	}
	for typ, kind := range tests {
		var je *JoinError
		if !errors.As(classifyJoin(tgerr.New(400, typ)), &je) || je.Kind != kind {
			t.Errorf("%s: got %+v, want kind %d", typ, je, kind)
		}
	}
}

func TestSplitChatID(t *testing.T) {
	tests := []struct {
		in   int64
		kind PeerKind
		id   int64
	}{
		{12345, PeerUser, 12345},
		{-4567, PeerChat, 4567},
		{-1001234567890, PeerChannel, 1234567890},
	}
	for _, tt := range tests {
		kind, id := SplitChatID(tt.in)
		if kind != tt.kind || id != tt.id {
			t.Errorf("SplitChatID(%d) = %d, %d", tt.in, kind, id)
		}
	}
}

func TestChunkText(t *testing.T) {
	if got := chunkText("short", 10); len(got) != 1 {
		t.Errorf("short text split into %d", len(got))
	}
	got := chunkText(strings.Repeat("é", 25), 10)
	if len(got) != 3 || len([]rune(got[2])) != 5 {
		t.Errorf("unexpected chunks %q", got)
	}
}

func TestSplitBold(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []captionPart
	}{
		{"empty", "", nil},
		{"plain", "holiday.mp4", []captionPart{{text: "holiday.mp4"}}},
		{"part label", relay.PartCaption("movie", 2), []captionPart{
			{text: "movie \n\n"},
			{text: "Part : 2", bold: true},
		}},
		{"part label without caption", relay.PartCaption("", 1), []captionPart{
			{text: " \n\n"},
			{text: "Part : 1", bold: true},
		}},
		{"unmatched marker", "a ** b", []captionPart{{text: "a ** b"}}},
		{"empty span", "a****b", []captionPart{{text: "a"}, {text: "b"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := splitBold(tt.in)
			if !slices.Equal(got, tt.want) {
				t.Errorf("splitBold(%q) = %+v, want %+v", tt.in, got, tt.want)
			}
			if n := len(styleCaption(tt.in)); n != len(tt.want) {
				t.Errorf("styleCaption gave %d options, want %d", n, len(tt.want))
			}
		})
	}
}

func TestConvertMessage(t *testing.T) {
	t.Run("video document", func(t *testing.T) {
		doc := &tg.Document{
			ID:         99,
			AccessHash: 1,
			MimeType:   "video/mp4",
			Size:       2048,
			Attributes: []tg.DocumentAttributeClass{
				&tg.DocumentAttributeVideo{W: 1280, H: 720, Duration: 61},
				&tg.DocumentAttributeFilename{FileName: "clip.mp4"},
			},
		}
		msg, err := convertMessage(5, 100, "cap", &tg.MessageMediaDocument{Document: doc})
		if err != nil {
			t.Fatal(err)
		}
		if msg.Media != relay.MediaVideo || msg.FileName != "clip.mp4" || msg.Size != 2048 {
			t.Errorf("unexpected message %+v", msg)
		}
		if msg.Width != 1280 || msg.Duration != 61*time.Second {
			t.Errorf("unexpected video metadata %+v", msg)
		}
		if _, ok := msg.Handle.(documentHandle); !ok {
			t.Errorf("handle = %T", msg.Handle)
		}
	})

	t.Run("unnamed document", func(t *testing.T) {
		doc := &tg.Document{ID: 7, MimeType: "application/pdf"}
		msg, err := convertMessage(1, 0, "", &tg.MessageMediaDocument{Document: doc})
		if err != nil || msg.FileName != "7.pdf" || msg.Media != relay.MediaDocument {
			t.Errorf("got %+v, %v", msg, err)
		}
	})

	t.Run("photo", func(t *testing.T) {
		photo := &tg.Photo{ID: 3, Sizes: []tg.PhotoSizeClass{
			&tg.PhotoSize{Type: "m", W: 320, H: 240, Size: 100},
			&tg.PhotoSizeProgressive{Type: "y", W: 1280, H: 960, Sizes: []int{10, 20, 300}},
		}}
		msg, err := convertMessage(1, 0, "", &tg.MessageMediaPhoto{Photo: photo})
		if err != nil {
			t.Fatal(err)
		}
		h := msg.Handle.(photoHandle)
		if h.loc.ThumbSize != "y" || msg.Size != 300 || msg.FileName != "3.jpg" {
			t.Errorf("unexpected photo %+v %+v", msg, h.loc)
		}
	})

	t.Run("text and webpage", func(t *testing.T) {
		msg, _ := convertMessage(1, 0, "hi", nil)
		if msg.HasFile() || msg.Text != "hi" {
			t.Errorf("unexpected text message %+v", msg)
		}
		msg, _ = convertMessage(1, 0, "see https://x", &tg.MessageMediaWebPage{})
		if msg.Media != relay.MediaWebPage || msg.HasFile() {
			t.Errorf("unexpected webpage message %+v", msg)
		}
	})

	t.Run("unsupported", func(t *testing.T) {
		if _, err := convertMessage(1, 0, "", &tg.MessageMediaGeo{}); !errors.Is(err, relay.ErrUnsupportedMedia) {
			t.Errorf("expected ErrUnsupportedMedia, got %v", err)
		}
	})
}
