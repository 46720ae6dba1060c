package batch

import "github.com/dattmumas/lnked-realtime/internal/model"

// Coalesce merges a slice of queued updates into one synthetic update.
//
// Message deltas sharing the same resolved key (real id if present, else
// optimistic id) collapse: a delete always wins; updates shallow-merge with
// later fields overriding earlier; changes arriving around a create are
// folded into the created message. Reads and reactions are concatenated
// (their appliers are idempotent), and only the most recent typing snapshot
// survives.
func Coalesce(updates []model.BatchedUpdate) model.BatchedUpdate {
	if len(updates) == 1 {
		return updates[0]
	}
	var out model.BatchedUpdate

	type slot struct {
		created      *model.Message
		changes      model.MessageChanges
		hasChanges   bool
		deleted      bool
		messageID    string
		optimisticID string
	}
	slots := make(map[string]*slot)
	var order []string

	for _, u := range updates {
		for _, d := range u.Messages {
			key := d.Key()
			if key == "" {
				continue
			}
			s, ok := slots[key]
			if !ok {
				s = &slot{}
				slots[key] = s
				order = append(order, key)
			}
			if d.MessageID != "" {
				s.messageID = d.MessageID
			}
			if d.OptimisticID != "" {
				s.optimisticID = d.OptimisticID
			}
			switch d.Action {
			case model.MessageCreated:
				if d.Message != nil {
					m := *d.Message
					s.created = &m
					if m.ID != "" {
						s.messageID = m.ID
					}
					if m.OptimisticID != "" {
						s.optimisticID = m.OptimisticID
					}
				}
			case model.MessageUpdated:
				if d.Changes != nil {
					s.changes = s.changes.Merge(*d.Changes)
					s.hasChanges = true
				}
			case model.MessageDeleted:
				s.deleted = true
			}
		}
		out.Reads = append(out.Reads, u.Reads...)
		out.Reactions = append(out.Reactions, u.Reactions...)
		if u.Typing != nil {
			out.Typing = u.Typing
		}
	}

	for _, key := range order {
		s := slots[key]
		switch {
		case s.deleted:
			out.Messages = append(out.Messages, model.MessageDelta{
				Action:       model.MessageDeleted,
				MessageID:    s.messageID,
				OptimisticID: s.optimisticID,
			})
		case s.created != nil:
			m := applyChanges(*s.created, s.changes, s.hasChanges)
			out.Messages = append(out.Messages, model.MessageDelta{
				Action:  model.MessageCreated,
				Message: &m,
			})
		case s.hasChanges:
			ch := s.changes
			out.Messages = append(out.Messages, model.MessageDelta{
				Action:       model.MessageUpdated,
				MessageID:    s.messageID,
				OptimisticID: s.optimisticID,
				Changes:      &ch,
			})
		}
	}
	return out
}

func applyChanges(m model.Message, ch model.MessageChanges, has bool) model.Message {
	if !has {
		return m
	}
	if ch.Content != nil {
		m.Content = *ch.Content
	}
	if ch.Type != nil {
		m.Type = *ch.Type
	}
	if ch.Deleted != nil {
		m.Deleted = *ch.Deleted
	}
	return m
}
