package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/dattmumas/lnked-realtime/internal/model"
)

const (
	convSubjectPrefix = "chat.conv."
	userSubjectPrefix = "chat.user."
)

// NATS is the production transport. One connection carries every
// subscription; connection-level trouble is fanned out to each live
// subscription as a channel_error / closed status so the subscription
// manager can drive its reconnect loop.
type NATS struct {
	nc  *nats.Conn
	log *zap.SugaredLogger

	mu   sync.Mutex
	subs map[*natsSubscription]struct{}
}

func NewNATS(url string, log *zap.SugaredLogger) (*NATS, error) {
	t := &NATS{log: log, subs: make(map[*natsSubscription]struct{})}
	nc, err := nats.Connect(url,
		nats.Name("lnked-realtime"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warnw("nats disconnected", "err", err)
			}
			t.fanout(StatusChannelError)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Infow("nats reconnected")
			t.fanout(StatusSubscribed)
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			t.fanout(StatusClosed)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	t.nc = nc
	return t, nil
}

func (t *NATS) Subscribe(ctx context.Context, topic Topic, h Handlers) (Subscription, error) {
	if t.nc.IsClosed() {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := &natsSubscription{parent: t, topic: topic, handlers: h}
	cb := func(m *nats.Msg) {
		var ev envelope
		if err := json.Unmarshal(m.Data, &ev); err != nil {
			t.log.Warnw("bad chat event payload", "subject", m.Subject, "err", err)
			return
		}
		dispatch(h, ev)
	}
	userSub, err := t.nc.Subscribe(userSubjectPrefix+topic.UserID, cb)
	if err != nil {
		return nil, fmt.Errorf("subscribe user subject: %w", err)
	}
	s.subs = append(s.subs, userSub)
	if topic.ConversationID != "" {
		convSub, err := t.nc.Subscribe(convSubjectPrefix+topic.ConversationID, cb)
		if err != nil {
			_ = userSub.Unsubscribe()
			return nil, fmt.Errorf("subscribe conversation subject: %w", err)
		}
		s.subs = append(s.subs, convSub)
	}
	// make sure the server saw the subscriptions before reporting success
	if err := t.nc.FlushWithContext(ctx); err != nil {
		for _, sub := range s.subs {
			_ = sub.Unsubscribe()
		}
		return nil, fmt.Errorf("flush subscribe: %w", err)
	}
	t.mu.Lock()
	t.subs[s] = struct{}{}
	t.mu.Unlock()
	if h.OnStatus != nil {
		h.OnStatus(StatusSubscribed)
	}
	return s, nil
}

func (t *NATS) Close() error {
	t.nc.Close()
	return nil
}

func (t *NATS) fanout(st Status) {
	t.mu.Lock()
	active := make([]*natsSubscription, 0, len(t.subs))
	for s := range t.subs {
		active = append(active, s)
	}
	t.mu.Unlock()
	for _, s := range active {
		if s.handlers.OnStatus != nil {
			s.handlers.OnStatus(st)
		}
	}
}

func (t *NATS) publish(subject string, ev envelope) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return t.nc.Publish(subject, b)
}

type natsSubscription struct {
	parent   *NATS
	topic    Topic
	handlers Handlers
	subs     []*nats.Subscription
}

func (s *natsSubscription) Unsubscribe(ctx context.Context) error {
	s.parent.mu.Lock()
	delete(s.parent.subs, s)
	s.parent.mu.Unlock()
	var firstErr error
	for _, sub := range s.subs {
		if err := sub.Unsubscribe(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (s *natsSubscription) PublishTyping(ctx context.Context, isTyping bool) error {
	if s.topic.ConversationID == "" {
		return nil
	}
	kind := kindTypingStop
	if isTyping {
		kind = kindTypingStart
	}
	return s.parent.publish(convSubjectPrefix+s.topic.ConversationID, envelope{
		Kind:   kind,
		UserID: s.topic.UserID,
	})
}

func (s *natsSubscription) BroadcastMessage(ctx context.Context, msg model.Message) error {
	return s.parent.publish(convSubjectPrefix+msg.ConversationID, envelope{
		Kind: kindUpdate,
		Update: &model.BatchedUpdate{
			Messages: []model.MessageDelta{{Action: model.MessageCreated, Message: &msg}},
		},
	})
}
