// Package transport abstracts the pub/sub channel that delivers realtime
// chat events. The sync core consumes it through the Transport interface;
// implementations exist for NATS and, for tests and single-process mode, an
// in-memory hub.
package transport

import (
	"context"
	"errors"

	"github.com/dattmumas/lnked-realtime/internal/model"
)

var ErrClosed = errors.New("transport: connection closed")

// Status is a connection-status event for one subscription.
type Status string

const (
	StatusSubscribed   Status = "subscribed"
	StatusChannelError Status = "channel_error"
	StatusTimedOut     Status = "timed_out"
	StatusClosed       Status = "closed"
)

// Topic identifies one subscription: a local user and, usually, the
// conversation they have open. An empty ConversationID subscribes to
// user-scoped events only (unread counts).
type Topic struct {
	UserID         string
	ConversationID string
}

// Handlers carries the callbacks invoked as events arrive. Nil entries are
// skipped. Implementations invoke handlers from their delivery goroutine;
// the batcher downstream provides serialization.
type Handlers struct {
	OnUpdate        func(model.BatchedUpdate)
	OnPresenceSync  func([]model.PresenceEntry)
	OnPresenceJoin  func(model.PresenceEntry)
	OnPresenceLeave func(userID string)
	OnTypingStart   func(userID, username string)
	OnTypingStop    func(userID string)
	OnUnreadCount   func(model.UnreadCountEvent)
	OnStatus        func(Status)
}

// Subscription is one live channel. Outbound calls are best-effort; the
// caller logs failures and moves on.
type Subscription interface {
	Unsubscribe(ctx context.Context) error
	PublishTyping(ctx context.Context, isTyping bool) error
	BroadcastMessage(ctx context.Context, msg model.Message) error
}

type Transport interface {
	Subscribe(ctx context.Context, topic Topic, h Handlers) (Subscription, error)
	Close() error
}
