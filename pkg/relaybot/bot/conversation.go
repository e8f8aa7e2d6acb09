package bot

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jholhewres/relaybot/pkg/relaybot/channels"
)

// Conversation errors.
var (
	ErrConversationTimeout   = errors.New("conversation timed out")
	ErrConversationCancelled = errors.New("conversation cancelled")
	ErrConversationBusy      = errors.New("another question is pending in this chat")
)

// Conversations routes replies to handlers waiting in Ask. There is at
// most one pending question per chat.
type Conversations struct {
	mu      sync.Mutex
	pending map[int64]*waiter
}

type waiter struct {
	reply  chan *channels.IncomingMessage
	cancel chan struct{}
	once   sync.Once
}

// NewConversations creates an empty registry.
func NewConversations() *Conversations {
	return &Conversations{pending: make(map[int64]*waiter)}
}

// Question is an open question in one chat. Replies delivered after Open
// are buffered until Await.
type Question struct {
	c      *Conversations
	chatID int64
	w      *waiter
}

// Open registers a question in chatID. Register before sending the prompt
// so a fast reply is not lost.
func (c *Conversations) Open(chatID int64) (*Question, error) {
	w := &waiter{
		reply:  make(chan *channels.IncomingMessage, 1),
		cancel: make(chan struct{}),
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, busy := c.pending[chatID]; busy {
		return nil, ErrConversationBusy
	}
	c.pending[chatID] = w
	return &Question{c: c, chatID: chatID, w: w}, nil
}

// Await blocks until the reply, the timeout or ctx, then closes q.
func (q *Question) Await(ctx context.Context, timeout time.Duration) (*channels.IncomingMessage, error) {
	defer q.Close()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case msg := <-q.w.reply:
		return msg, nil
	case <-q.w.cancel:
		return nil, ErrConversationCancelled
	case <-timer.C:
		return nil, ErrConversationTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close unregisters q if it is still pending.
func (q *Question) Close() {
	q.c.mu.Lock()
	if q.c.pending[q.chatID] == q.w {
		delete(q.c.pending, q.chatID)
	}
	q.c.mu.Unlock()
}

// Wait blocks until the next message in chatID, the timeout or ctx.
func (c *Conversations) Wait(ctx context.Context, chatID int64, timeout time.Duration) (*channels.IncomingMessage, error) {
	q, err := c.Open(chatID)
	if err != nil {
		return nil, err
	}
	return q.Await(ctx, timeout)
}

// Deliver hands msg to a pending question in its chat. It reports whether
// anyone was waiting.
func (c *Conversations) Deliver(msg *channels.IncomingMessage) bool {
	c.mu.Lock()
	w, ok := c.pending[msg.ChatID]
	if ok {
		delete(c.pending, msg.ChatID)
	}
	c.mu.Unlock()
	if !ok {
		return false
	}
	w.reply <- msg
	return true
}

// Cancel aborts the pending question in chatID.
func (c *Conversations) Cancel(chatID int64) bool {
	c.mu.Lock()
	w, ok := c.pending[chatID]
	if ok {
		delete(c.pending, chatID)
	}
	c.mu.Unlock()
	if ok {
		w.once.Do(func() { close(w.cancel) })
	}
	return ok
}

// Pending reports whether a question is open in chatID.
func (c *Conversations) Pending(chatID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pending[chatID]
	return ok
}
