package domain

import (
	"context"
	"time"
)

// Journal records every observed message and tracks whether its plan
// has been fully executed. A message stays pending until all of its
// actions succeeded, so a failed send is redelivered on the next poll
// cycle (at-least-once).
type Journal interface {
	// Record stores the message if it has not been seen before and
	// reports whether it was already known.
	Record(ctx context.Context, msg IncomingMessage) (seen bool, err error)

	// MarkProcessed marks the message's plan as fully executed.
	MarkProcessed(ctx context.Context, id string) error

	// Pending returns unprocessed messages in arrival order and bumps
	// their attempt counter.
	Pending(ctx context.Context) ([]IncomingMessage, error)

	// PendingCount reports the journal backlog without touching it.
	PendingCount(ctx context.Context) (int, error)

	// TeacherCount reports how many teacher messages arrived since the
	// given time.
	TeacherCount(ctx context.Context, since time.Time) (int, error)

	// Cleanup removes messages received before the given time and
	// returns how many rows were deleted.
	Cleanup(ctx context.Context, before time.Time) (int64, error)

	Close() error
}
