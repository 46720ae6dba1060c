package transport

import "github.com/dattmumas/lnked-realtime/internal/model"

// Event kinds carried on the wire.
const (
	kindUpdate        = "update"
	kindPresenceSync  = "presence_sync"
	kindPresenceJoin  = "presence_join"
	kindPresenceLeave = "presence_leave"
	kindTypingStart   = "typing_start"
	kindTypingStop    = "typing_stop"
	kindUnreadCount   = "unread_count"
)

// envelope is the JSON wire frame for every chat event. Kind selects which
// payload field is populated.
type envelope struct {
	Kind     string                  `json:"kind"`
	Update   *model.BatchedUpdate    `json:"update,omitempty"`
	Presence []model.PresenceEntry   `json:"presence,omitempty"`
	Peer     *model.PresenceEntry    `json:"peer,omitempty"`
	UserID   string                  `json:"user_id,omitempty"`
	Username string                  `json:"username,omitempty"`
	Unread   *model.UnreadCountEvent `json:"unread,omitempty"`
}

// dispatch routes one decoded envelope to the matching handler.
func dispatch(h Handlers, ev envelope) {
	switch ev.Kind {
	case kindUpdate:
		if h.OnUpdate != nil && ev.Update != nil {
			h.OnUpdate(*ev.Update)
		}
	case kindPresenceSync:
		if h.OnPresenceSync != nil {
			h.OnPresenceSync(ev.Presence)
		}
	case kindPresenceJoin:
		if h.OnPresenceJoin != nil && ev.Peer != nil {
			h.OnPresenceJoin(*ev.Peer)
		}
	case kindPresenceLeave:
		if h.OnPresenceLeave != nil {
			h.OnPresenceLeave(ev.UserID)
		}
	case kindTypingStart:
		if h.OnTypingStart != nil {
			h.OnTypingStart(ev.UserID, ev.Username)
		}
	case kindTypingStop:
		if h.OnTypingStop != nil {
			h.OnTypingStop(ev.UserID)
		}
	case kindUnreadCount:
		if h.OnUnreadCount != nil && ev.Unread != nil {
			h.OnUnreadCount(*ev.Unread)
		}
	}
}
