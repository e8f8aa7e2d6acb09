package mtproto

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/gotd/td/telegram/message/peer"
	"github.com/gotd/td/telegram/query"
	"github.com/gotd/td/tg"

	"github.com/jholhewres/relaybot/pkg/relaybot/links"
	"github.com/jholhewres/relaybot/pkg/relaybot/media"
	"github.com/jholhewres/relaybot/pkg/relaybot/relay"
)

const dialogBatch = 100

// Resolve finds the input peer of the chat a link points at. Usernames are
// resolved by the server; numeric IDs are looked up in the dialog list.
func (b *Userbot) Resolve(ctx context.Context, link links.Link) (tg.InputPeerClass, error) {
	switch link.Kind {
	case links.KindPublic, links.KindBot, links.KindStory:
		p, err := peer.Plain(b.api).ResolveDomain(ctx, link.Username)
		if err != nil {
			return nil, fmt.Errorf("resolve @%s: %w", link.Username, err)
		}
		return p, nil
	case links.KindPrivate, links.KindUser:
		return b.findDialog(ctx, link.Kind, link.ChatID)
	default:
		return nil, fmt.Errorf("%w: %s links carry no message", links.ErrInvalidLink, link.Kind)
	}
}

func (b *Userbot) findDialog(ctx context.Context, kind links.Kind, id int64) (tg.InputPeerClass, error) {
	iter := query.GetDialogs(b.api).BatchSize(dialogBatch).Iter()
	limit := b.cfg.DialogPages * dialogBatch

	for n := 0; n < limit && iter.Next(ctx); n++ {
		switch p := iter.Value().Peer.(type) {
		case *tg.InputPeerChannel:
			if kind == links.KindPrivate && p.ChannelID == id {
				return p, nil
			}
		case *tg.InputPeerChat:
			if kind == links.KindPrivate && p.ChatID == id {
				return p, nil
			}
		case *tg.InputPeerUser:
			if kind == links.KindUser && p.UserID == id {
				return p, nil
			}
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan dialogs: %w", err)
	}
	return nil, fmt.Errorf("%w: chat %d is not among the account's dialogs", relay.ErrMessageNotFound, id)
}

// Message implements relay.Source.
func (b *Userbot) Message(ctx context.Context, link links.Link) (*relay.Message, error) {
	p, err := b.Resolve(ctx, link)
	if err != nil {
		return nil, err
	}
	if link.Kind == links.KindStory {
		return b.story(ctx, p, link.MessageID)
	}

	ids := []tg.InputMessageClass{&tg.InputMessageID{ID: link.MessageID}}
	var res tg.MessagesMessagesClass
	if ch, ok := p.(*tg.InputPeerChannel); ok {
		res, err = b.api.ChannelsGetMessages(ctx, &tg.ChannelsGetMessagesRequest{
			Channel: &tg.InputChannel{ChannelID: ch.ChannelID, AccessHash: ch.AccessHash},
			ID:      ids,
		})
	} else {
		res, err = b.api.MessagesGetMessages(ctx, ids)
	}
	if err != nil {
		return nil, fmt.Errorf("get message %d: %w", link.MessageID, err)
	}

	var msgs []tg.MessageClass
	switch r := res.(type) {
	case *tg.MessagesMessages:
		msgs = r.Messages
	case *tg.MessagesMessagesSlice:
		msgs = r.Messages
	case *tg.MessagesChannelMessages:
		msgs = r.Messages
	}
	for _, m := range msgs {
		switch m := m.(type) {
		case *tg.Message:
			if m.ID == link.MessageID {
				return convertMessage(m.ID, link.ChatID, m.Message, m.Media)
			}
		case *tg.MessageService:
			if m.ID == link.MessageID {
				return &relay.Message{ID: m.ID, ChatID: link.ChatID, Service: true}, nil
			}
		}
	}
	return nil, relay.ErrMessageNotFound
}

func (b *Userbot) story(ctx context.Context, p tg.InputPeerClass, id int) (*relay.Message, error) {
	res, err := b.api.StoriesGetStoriesByID(ctx, &tg.StoriesGetStoriesByIDRequest{
		Peer: p,
		ID:   []int{id},
	})
	if err != nil {
		return nil, fmt.Errorf("get story %d: %w", id, err)
	}
	for _, s := range res.Stories {
		if item, ok := s.(*tg.StoryItem); ok && item.ID == id {
			return convertMessage(item.ID, 0, item.Caption, item.Media)
		}
	}
	return nil, relay.ErrMessageNotFound
}

// photoHandle and documentHandle are stored in relay.Message.Handle.
type photoHandle struct {
	loc *tg.InputPhotoFileLocation
}

type documentHandle struct {
	loc *tg.InputDocumentFileLocation
}

func convertMessage(id int, chatID int64, text string, m tg.MessageMediaClass) (*relay.Message, error) {
	msg := &relay.Message{ID: id, ChatID: chatID, Text: text}
	if m == nil {
		return msg, nil
	}

	switch m := m.(type) {
	case *tg.MessageMediaPhoto:
		photo, ok := m.Photo.(*tg.Photo)
		if !ok {
			return nil, relay.ErrUnsupportedMedia
		}
		thumb, w, h, size := largestPhotoSize(photo.Sizes)
		if thumb == "" {
			return nil, relay.ErrUnsupportedMedia
		}
		msg.Media = relay.MediaPhoto
		msg.FileName = strconv.FormatInt(photo.ID, 10) + ".jpg"
		msg.MIME = "image/jpeg"
		msg.Width, msg.Height, msg.Size = w, h, int64(size)
		msg.Handle = photoHandle{loc: &tg.InputPhotoFileLocation{
			ID:            photo.ID,
			AccessHash:    photo.AccessHash,
			FileReference: photo.FileReference,
			ThumbSize:     thumb,
		}}

	case *tg.MessageMediaDocument:
		doc, ok := m.Document.(*tg.Document)
		if !ok {
			return nil, relay.ErrUnsupportedMedia
		}
		msg.Media = relay.MediaDocument
		msg.MIME = doc.MimeType
		msg.Size = int64(doc.Size)
		for _, attr := range doc.Attributes {
			switch a := attr.(type) {
			case *tg.DocumentAttributeFilename:
				msg.FileName = a.FileName
			case *tg.DocumentAttributeVideo:
				msg.Media = relay.MediaVideo
				msg.Width, msg.Height = a.W, a.H
				msg.Duration = seconds(float64(a.Duration))
			case *tg.DocumentAttributeAudio:
				if !a.Voice {
					msg.Media = relay.MediaAudio
				}
				msg.Duration = seconds(float64(a.Duration))
			}
		}
		if msg.FileName == "" {
			msg.FileName = strconv.FormatInt(doc.ID, 10) + media.ExtFromMIME(doc.MimeType)
		}
		msg.Handle = documentHandle{loc: &tg.InputDocumentFileLocation{
			ID:            doc.ID,
			AccessHash:    doc.AccessHash,
			FileReference: doc.FileReference,
		}}

	case *tg.MessageMediaWebPage:
		msg.Media = relay.MediaWebPage

	default:
		if text == "" {
			return nil, relay.ErrUnsupportedMedia
		}
	}
	return msg, nil
}

func largestPhotoSize(sizes []tg.PhotoSizeClass) (typ string, w, h, size int) {
	best := -1
	for _, s := range sizes {
		switch s := s.(type) {
		case *tg.PhotoSize:
			if area := s.W * s.H; area > best {
				best, typ, w, h, size = area, s.Type, s.W, s.H, s.Size
			}
		case *tg.PhotoSizeProgressive:
			if area := s.W * s.H; area > best && len(s.Sizes) > 0 {
				best, typ, w, h, size = area, s.Type, s.W, s.H, s.Sizes[len(s.Sizes)-1]
			}
		}
	}
	return typ, w, h, size
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}
