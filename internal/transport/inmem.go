package transport

import (
	"context"
	"sync"

	"github.com/dattmumas/lnked-realtime/internal/model"
)

// InMem is an in-process transport for single-process mode and tests. It
// keeps every live subscription reachable so a test can emit events and
// inspect outbound traffic; error fields inject failures.
type InMem struct {
	mu     sync.Mutex
	closed bool
	subs   []*InMemSubscription

	// SubscribeErr, when set, fails the next Subscribe call and is cleared.
	SubscribeErr error
	// TypingErr / BroadcastErr fail the respective outbound calls.
	TypingErr    error
	BroadcastErr error

	SubscribeCalls int
}

func NewInMem() *InMem { return &InMem{} }

func (t *InMem) Subscribe(ctx context.Context, topic Topic, h Handlers) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.mu.Lock()
	t.SubscribeCalls++
	if t.closed {
		t.mu.Unlock()
		return nil, ErrClosed
	}
	if err := t.SubscribeErr; err != nil {
		t.SubscribeErr = nil
		t.mu.Unlock()
		return nil, err
	}
	s := &InMemSubscription{parent: t, topic: topic, handlers: h}
	t.subs = append(t.subs, s)
	t.mu.Unlock()
	if h.OnStatus != nil {
		h.OnStatus(StatusSubscribed)
	}
	return s, nil
}

func (t *InMem) Close() error {
	t.mu.Lock()
	t.closed = true
	subs := t.subs
	t.subs = nil
	t.mu.Unlock()
	for _, s := range subs {
		if s.handlers.OnStatus != nil {
			s.handlers.OnStatus(StatusClosed)
		}
	}
	return nil
}

// EmitUpdate delivers a batched update to every live subscription on the
// conversation.
func (t *InMem) EmitUpdate(conversationID string, u model.BatchedUpdate) {
	for _, s := range t.live(conversationID) {
		if s.handlers.OnUpdate != nil {
			s.handlers.OnUpdate(u)
		}
	}
}

// EmitPresenceSync delivers an authoritative presence snapshot.
func (t *InMem) EmitPresenceSync(conversationID string, entries []model.PresenceEntry) {
	for _, s := range t.live(conversationID) {
		if s.handlers.OnPresenceSync != nil {
			s.handlers.OnPresenceSync(entries)
		}
	}
}

// EmitTypingStart delivers a typing-start event.
func (t *InMem) EmitTypingStart(conversationID, userID, username string) {
	for _, s := range t.live(conversationID) {
		if s.handlers.OnTypingStart != nil {
			s.handlers.OnTypingStart(userID, username)
		}
	}
}

// EmitTypingStop delivers a typing-stop event.
func (t *InMem) EmitTypingStop(conversationID, userID string) {
	for _, s := range t.live(conversationID) {
		if s.handlers.OnTypingStop != nil {
			s.handlers.OnTypingStop(userID)
		}
	}
}

// EmitUnreadCount delivers a server-computed unread count to the user scope.
func (t *InMem) EmitUnreadCount(userID string, ev model.UnreadCountEvent) {
	t.mu.Lock()
	subs := append([]*InMemSubscription(nil), t.subs...)
	t.mu.Unlock()
	for _, s := range subs {
		if s.topic.UserID == userID && !s.unsubscribed && s.handlers.OnUnreadCount != nil {
			s.handlers.OnUnreadCount(ev)
		}
	}
}

// EmitStatus delivers a connection-status event to every live subscription
// on the conversation.
func (t *InMem) EmitStatus(conversationID string, st Status) {
	for _, s := range t.live(conversationID) {
		if s.handlers.OnStatus != nil {
			s.handlers.OnStatus(st)
		}
	}
}

// Subscriptions returns every subscription ever opened, for inspection.
func (t *InMem) Subscriptions() []*InMemSubscription {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*InMemSubscription(nil), t.subs...)
}

func (t *InMem) live(conversationID string) []*InMemSubscription {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []*InMemSubscription
	for _, s := range t.subs {
		if !s.unsubscribed && s.topic.ConversationID == conversationID {
			out = append(out, s)
		}
	}
	return out
}

type InMemSubscription struct {
	parent   *InMem
	topic    Topic
	handlers Handlers

	mu           sync.Mutex
	unsubscribed bool

	TypingSignals []bool
	Broadcasts    []model.Message
}

func (s *InMemSubscription) Topic() Topic { return s.topic }

func (s *InMemSubscription) Unsubscribed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unsubscribed
}

func (s *InMemSubscription) Unsubscribe(ctx context.Context) error {
	s.mu.Lock()
	s.unsubscribed = true
	s.mu.Unlock()
	return nil
}

func (s *InMemSubscription) PublishTyping(ctx context.Context, isTyping bool) error {
	if err := s.parent.TypingErr; err != nil {
		return err
	}
	s.mu.Lock()
	s.TypingSignals = append(s.TypingSignals, isTyping)
	s.mu.Unlock()
	return nil
}

func (s *InMemSubscription) BroadcastMessage(ctx context.Context, msg model.Message) error {
	if err := s.parent.BroadcastErr; err != nil {
		return err
	}
	s.mu.Lock()
	s.Broadcasts = append(s.Broadcasts, msg)
	s.mu.Unlock()
	// loop the message back to other live subscriptions on the conversation
	for _, other := range s.parent.live(msg.ConversationID) {
		if other == s || other.handlers.OnUpdate == nil {
			continue
		}
		m := msg
		other.handlers.OnUpdate(model.BatchedUpdate{
			Messages: []model.MessageDelta{{Action: model.MessageCreated, Message: &m}},
		})
	}
	return nil
}
