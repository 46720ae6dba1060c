package model

import "time"

// LastMessage is the denormalized snapshot shown in the conversation list.
type LastMessage struct {
	ID         string    `json:"id" bson:"id"`
	Content    string    `json:"content" bson:"content"`
	SenderID   string    `json:"sender_id" bson:"sender_id"`
	SenderName string    `json:"sender_name,omitempty" bson:"sender_name,omitempty"`
	CreatedAt  time.Time `json:"created_at" bson:"created_at"`
}

// ConversationSummary is one entry of the conversation list view.
type ConversationSummary struct {
	ID            string       `json:"id" bson:"id"`
	Title         string       `json:"title,omitempty" bson:"title,omitempty"`
	LastMessage   *LastMessage `json:"last_message,omitempty" bson:"last_message,omitempty"`
	LastMessageAt time.Time    `json:"last_message_at,omitempty" bson:"last_message_at,omitempty"`
	UnreadCount   int          `json:"unread_count" bson:"unread_count"`
}

type ConversationCacheKind int

const (
	ConversationCacheFlat ConversationCacheKind = iota
	ConversationCachePaginated
)

// ConversationCache holds the conversation list in one of two shapes: a flat
// list or a paginated one. The shape is resolved once when the cache is
// built; the summary updater applies the same rule to either shape.
type ConversationCache struct {
	Kind  ConversationCacheKind   `json:"kind" bson:"kind"`
	Flat  []ConversationSummary   `json:"flat,omitempty" bson:"flat,omitempty"`
	Pages [][]ConversationSummary `json:"pages,omitempty" bson:"pages,omitempty"`
}

// NewFlatConversationCache builds a flat-shaped cache.
func NewFlatConversationCache(list []ConversationSummary) *ConversationCache {
	return &ConversationCache{Kind: ConversationCacheFlat, Flat: list}
}

// NewPaginatedConversationCache builds a paginated-shaped cache.
func NewPaginatedConversationCache(pages [][]ConversationSummary) *ConversationCache {
	return &ConversationCache{Kind: ConversationCachePaginated, Pages: pages}
}

// Find returns the summary for id wherever it lives, or ok=false.
func (c *ConversationCache) Find(id string) (ConversationSummary, bool) {
	if c == nil {
		return ConversationSummary{}, false
	}
	switch c.Kind {
	case ConversationCacheFlat:
		for _, s := range c.Flat {
			if s.ID == id {
				return s, true
			}
		}
	case ConversationCachePaginated:
		for _, page := range c.Pages {
			for _, s := range page {
				if s.ID == id {
					return s, true
				}
			}
		}
	}
	return ConversationSummary{}, false
}

// All returns every summary in list order regardless of shape.
func (c *ConversationCache) All() []ConversationSummary {
	if c == nil {
		return nil
	}
	if c.Kind == ConversationCacheFlat {
		return append([]ConversationSummary(nil), c.Flat...)
	}
	var out []ConversationSummary
	for _, page := range c.Pages {
		out = append(out, page...)
	}
	return out
}
