package event

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/crewdhq/crewd/internal/eventbus"
)

// Log is the append-only event log: durable store plus in-process fanout.
// Append writes to the store synchronously before notifying subscribers, so
// an acknowledged event is always recoverable from disk.
type Log struct {
	repo Repository
	bus  *eventbus.Bus[*Event]

	mu     sync.Mutex
	lastTS time.Time
	now    func() time.Time
}

func NewLog(repo Repository) *Log {
	return &Log{
		repo: repo,
		bus:  eventbus.New[*Event](),
		now:  time.Now,
	}
}

// SetClock replaces the wall clock. Tests use this to get deterministic
// timestamps.
func (l *Log) SetClock(now func() time.Time) {
	l.mu.Lock()
	l.now = now
	l.mu.Unlock()
}

// Append assigns id and timestamp if absent, persists the event, then
// notifies subscribers. Timestamps are clamped to be monotonically
// non-decreasing even if the wall clock steps backwards. A storage failure
// is returned to the caller and nothing is published.
func (l *Log) Append(ctx context.Context, e *Event) (*Event, error) {
	l.mu.Lock()
	if e.ID == "" {
		e.ID = ulid.Make().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = l.now().UTC().Truncate(time.Millisecond)
	}
	if e.Timestamp.Before(l.lastTS) {
		e.Timestamp = l.lastTS
	}
	l.lastTS = e.Timestamp

	if err := l.repo.Insert(ctx, e); err != nil {
		l.mu.Unlock()
		return nil, fmt.Errorf("append event %s: %w", e.Action, err)
	}
	l.mu.Unlock()

	l.bus.Publish(e)
	return e, nil
}

// Query returns matching events newest first. Pure read, no side effects.
func (l *Log) Query(ctx context.Context, q Query) ([]*Event, error) {
	return l.repo.List(ctx, q)
}

// ListAfter pages through the log oldest first, for replay and archival.
func (l *Log) ListAfter(ctx context.Context, afterSeq int64, limit int) ([]*Event, error) {
	return l.repo.ListAfter(ctx, afterSeq, limit)
}

// Count returns the total number of events ever appended.
func (l *Log) Count(ctx context.Context) (int64, error) {
	return l.repo.Count(ctx)
}

// Subscribe registers a live subscriber. Every event appended after this
// call is delivered in append order, subject to the subscriber keeping up
// with its buffer.
func (l *Log) Subscribe(bufSize int) (string, <-chan *Event) {
	return l.bus.Subscribe(bufSize)
}

// Unsubscribe removes a subscriber registered with Subscribe.
func (l *Log) Unsubscribe(id string) {
	l.bus.Unsubscribe(id)
}
