package model

// Page is one bounded window of messages fetched from the history store.
type Page struct {
	Messages []Message `json:"messages"`
	HasMore  bool      `json:"has_more"`
}

// MessageCache is the paginated local message cache for one conversation.
// Pages are ordered newest-fetched first; realtime messages are appended to
// the newest page. Instances are immutable: the merge functions in the cache
// package return new snapshots and never mutate their input.
type MessageCache struct {
	Pages []Page `json:"pages"`
}

// Len returns the total number of buffered messages across all pages.
func (c *MessageCache) Len() int {
	if c == nil {
		return 0
	}
	n := 0
	for _, p := range c.Pages {
		n += len(p.Messages)
	}
	return n
}

// Find returns the first message matching key (server id or optimistic id)
// together with its page and slot, or ok=false.
func (c *MessageCache) Find(key string) (msg Message, page, slot int, ok bool) {
	if c == nil || key == "" {
		return Message{}, 0, 0, false
	}
	for pi, p := range c.Pages {
		for mi, m := range p.Messages {
			if m.ID == key || m.OptimisticID == key {
				return m, pi, mi, true
			}
		}
	}
	return Message{}, 0, 0, false
}
