package model

import "time"

// Message is a single chat message as held in the local cache.
//
// Identity is either a server-assigned ID or, before the server has
// confirmed the send, a client-generated OptimisticID. Once a message is
// reconciled the optimistic id is stripped.
type Message struct {
	ID             string    `json:"id,omitempty" bson:"_id,omitempty"`
	OptimisticID   string    `json:"optimistic_id,omitempty" bson:"optimistic_id,omitempty"`
	ConversationID string    `json:"conversation_id" bson:"conversation_id"`
	SenderID       string    `json:"sender_id" bson:"sender_id"`
	SenderName     string    `json:"sender_name,omitempty" bson:"sender_name,omitempty"`
	Content        string    `json:"content" bson:"content"`
	Type           string    `json:"type,omitempty" bson:"type,omitempty"`
	CreatedAt      time.Time `json:"created_at" bson:"created_at"`
	Deleted        bool      `json:"deleted,omitempty" bson:"deleted,omitempty"`

	// Reactions maps a reaction kind to the set of user ids that added it.
	Reactions map[string][]string `json:"reactions,omitempty" bson:"reactions,omitempty"`

	// ReadBy maps a reader's user id to the time they read the message.
	ReadBy map[string]time.Time `json:"read_by,omitempty" bson:"read_by,omitempty"`
}

// Key returns the resolved cache key: the server id when known, the
// optimistic id otherwise.
func (m Message) Key() string {
	if m.ID != "" {
		return m.ID
	}
	return m.OptimisticID
}

// Matches reports whether other refers to the same logical message, by
// server id or by optimistic id.
func (m Message) Matches(other Message) bool {
	if m.ID != "" && m.ID == other.ID {
		return true
	}
	if m.OptimisticID != "" && m.OptimisticID == other.OptimisticID {
		return true
	}
	return false
}

// CloneReactions returns a copy of the reaction map so callers can modify
// it without touching the original message.
func (m Message) CloneReactions() map[string][]string {
	if m.Reactions == nil {
		return nil
	}
	out := make(map[string][]string, len(m.Reactions))
	for kind, users := range m.Reactions {
		out[kind] = append([]string(nil), users...)
	}
	return out
}

// CloneReadBy returns a copy of the read-receipt map.
func (m Message) CloneReadBy() map[string]time.Time {
	if m.ReadBy == nil {
		return nil
	}
	out := make(map[string]time.Time, len(m.ReadBy))
	for user, at := range m.ReadBy {
		out[user] = at
	}
	return out
}
