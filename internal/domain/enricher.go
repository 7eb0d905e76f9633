package domain

import "context"

// Enricher is the optional AI collaborator. Both calls are advisory:
// any error degrades to forwarding the raw text (fail-open), never to
// dropping the message.
type Enricher interface {
	Name() string

	// Summarize rewrites a teacher message into a forward-ready notice.
	Summarize(ctx context.Context, teacher string, text string) (string, error)

	// ShouldForward classifies whether a teacher message is worth
	// fanning out to the class.
	ShouldForward(ctx context.Context, teacher string, text string) (bool, error)

	// Healthy reports whether the remote API is reachable.
	Healthy(ctx context.Context) error
}
