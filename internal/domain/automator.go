package domain

import (
	"context"
	"time"
)

// Automator is the capability boundary to the chat client. The planner
// never sees it; only the controller and monitor translate plans and
// polling into these calls.
type Automator interface {
	Name() string

	// Ready reports whether the client is reachable and logged in.
	Ready(ctx context.Context) error

	// Focus opens or raises the chat window for the given contact.
	Focus(ctx context.Context, contact string) error

	// ReadLatest returns the newest entry in the contact's chat window.
	ReadLatest(ctx context.Context, contact string) (LatestEntry, error)

	// Send delivers text into the contact's chat window.
	Send(ctx context.Context, contact string, text string) error

	// Refresh attempts to recover a wedged client session.
	Refresh(ctx context.Context) error
}

// LatestEntry is the raw observation an automator makes of a chat
// window before it is attributed and turned into an IncomingMessage.
type LatestEntry struct {
	Content    string
	Kind       MessageKind
	ObservedAt time.Time
}
