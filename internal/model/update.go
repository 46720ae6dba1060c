package model

import "time"

type MessageAction string

const (
	MessageCreated MessageAction = "created"
	MessageUpdated MessageAction = "updated"
	MessageDeleted MessageAction = "deleted"
)

// MessageChanges carries the fields of a partial message update. Nil fields
// are left untouched when the change is applied; merging two changes for the
// same message is a shallow merge where the later non-nil field wins.
type MessageChanges struct {
	Content *string `json:"content,omitempty"`
	Type    *string `json:"type,omitempty"`
	Deleted *bool   `json:"deleted,omitempty"`
}

// Merge overlays later onto c, returning the combined change set.
func (c MessageChanges) Merge(later MessageChanges) MessageChanges {
	out := c
	if later.Content != nil {
		out.Content = later.Content
	}
	if later.Type != nil {
		out.Type = later.Type
	}
	if later.Deleted != nil {
		out.Deleted = later.Deleted
	}
	return out
}

// MessageDelta is one message-level change inside a batched update. Created
// deltas carry the full message; updated deltas carry the target id and the
// changed fields; deleted deltas carry only the target id.
type MessageDelta struct {
	Action       MessageAction   `json:"action"`
	Message      *Message        `json:"message,omitempty"`
	MessageID    string          `json:"message_id,omitempty"`
	OptimisticID string          `json:"optimistic_id,omitempty"`
	Changes      *MessageChanges `json:"changes,omitempty"`
}

// Key resolves the delta's dedup key: real id if present, else optimistic id.
func (d MessageDelta) Key() string {
	if d.Message != nil {
		if k := d.Message.Key(); k != "" {
			return k
		}
	}
	if d.MessageID != "" {
		return d.MessageID
	}
	return d.OptimisticID
}

type ReadReceipt struct {
	UserID    string    `json:"user_id"`
	MessageID string    `json:"message_id"`
	ReadAt    time.Time `json:"read_at"`
}

type ReactionAction string

const (
	ReactionAdded   ReactionAction = "added"
	ReactionRemoved ReactionAction = "removed"
)

type ReactionDelta struct {
	Action    ReactionAction `json:"action"`
	MessageID string         `json:"message_id"`
	UserID    string         `json:"user_id"`
	Reaction  string         `json:"reaction"`
}

type TypingUser struct {
	UserID   string `json:"user_id"`
	Username string `json:"username,omitempty"`
}

// TypingSnapshot is the full set of users currently typing in the
// conversation. Within one batched update at most one snapshot is present
// and it supersedes any earlier one.
type TypingSnapshot struct {
	TypingUsers []TypingUser `json:"typing_users"`
}

// BatchedUpdate is the transport's delivery unit: a transient bundle of
// heterogeneous deltas, consumed by the batcher and then discarded.
type BatchedUpdate struct {
	Messages  []MessageDelta  `json:"messages,omitempty"`
	Reads     []ReadReceipt   `json:"reads,omitempty"`
	Reactions []ReactionDelta `json:"reactions,omitempty"`
	Typing    *TypingSnapshot `json:"typing,omitempty"`
}

// Empty reports whether the update carries no deltas at all.
func (u BatchedUpdate) Empty() bool {
	return len(u.Messages) == 0 && len(u.Reads) == 0 && len(u.Reactions) == 0 && u.Typing == nil
}

// UnreadCountEvent is sent by the server when it has independently computed
// a conversation's unread count; it overrides the locally tracked value.
type UnreadCountEvent struct {
	ConversationID string `json:"conversation_id"`
	UnreadCount    int    `json:"unread_count"`
}
