package event

import (
	"context"
	"time"
)

const (
	// DefaultQueryLimit bounds List results when the caller gives no limit.
	DefaultQueryLimit = 100
	// MaxQueryLimit is the hard cap on a single List call.
	MaxQueryLimit = 1000
)

// Query filters a List call. Zero values mean "no filter".
type Query struct {
	ActorID           string
	Action            Action
	ResourcePath      string
	Since             time.Time
	Limit             int
	IncludeHeartbeats bool
}

// Repository is the durable append-only store behind the Log. Insert must
// not return until the record is safely on disk.
type Repository interface {
	// Insert appends e and fills in e.Seq with the assigned insertion order.
	Insert(ctx context.Context, e *Event) error
	// List returns matching events newest first, bounded by q.Limit.
	List(ctx context.Context, q Query) ([]*Event, error)
	// ListAfter returns up to limit events with Seq > afterSeq, oldest
	// first. Used for replay and archival paging.
	ListAfter(ctx context.Context, afterSeq int64, limit int) ([]*Event, error)
	// Count returns the total number of events ever appended.
	Count(ctx context.Context) (int64, error)
	Close() error
}
