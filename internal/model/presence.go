package model

import "time"

// PresenceEntry is the tracked state for one peer in a conversation. Typing
// is derived: it is set when the user has a live typing entry, and entries
// synthesized purely from typing events carry a zero OnlineSince.
type PresenceEntry struct {
	UserID      string    `json:"user_id"`
	Username    string    `json:"username,omitempty"`
	OnlineSince time.Time `json:"online_since,omitempty"`
	Typing      bool      `json:"typing"`
}
