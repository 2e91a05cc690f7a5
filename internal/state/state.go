package state

import "github.com/charlesng35/feedsync/internal/entity"

// Phase is the lifecycle position of one presentation surface.
type Phase string

const (
	PhaseInitial Phase = "initial"
	PhaseLoading Phase = "loading"
	PhaseLoaded  Phase = "loaded"
	PhaseError   Phase = "error"
)

// Stream names for published events.
const (
	StreamSession = "session"
	StreamFeed    = "feed"
)

// SessionState is the login surface snapshot. Message carries the
// user-facing failure text when Phase is PhaseError.
type SessionState struct {
	Phase         Phase        `json:"phase"`
	User          *entity.User `json:"user,omitempty"`
	Authenticated bool         `json:"authenticated"`
	Message       string       `json:"message,omitempty"`
}

// FeedState is the feed surface snapshot. Items survive a failed refresh or
// page load; Message then explains what went wrong.
type FeedState struct {
	Phase         Phase         `json:"phase"`
	Items         []entity.Post `json:"items"`
	HasMore       bool          `json:"hasMore"`
	NextOffset    int           `json:"nextOffset"`
	IsLoadingMore bool          `json:"isLoadingMore"`
	Message       string        `json:"message,omitempty"`
}

// Event is one state snapshot published to subscribers. Exactly one of
// Session or Feed is set, matching Stream.
type Event struct {
	Stream  string        `json:"stream"`
	Session *SessionState `json:"session,omitempty"`
	Feed    *FeedState    `json:"feed,omitempty"`
}
