// Package queue implements the single global FIFO of users waiting for a
// partner (spec.md §3, §4.2). Membership is a plain Redis list; a user
// appears at most once, and membership is equivalent to state IN_QUEUE,
// which callers are responsible for keeping in sync (the queue package
// itself only manages list membership).
package queue

import (
	"context"
	"errors"

	"github.com/whisper/anonrelay/internal/store"
)

// Key is the Redis list holding the waiting queue, per the store key layout
// in spec.md §6.
const Key = "queue:waiting"

// ErrFull is returned by Push when the queue is already at its configured
// capacity.
var ErrFull = errors.New("queue: full")

// Queue is a thin typed wrapper over the store's list primitives.
type Queue struct {
	db      *store.Adapter
	maxSize int64
}

// New creates a Queue backed by db. maxSize <= 0 means unbounded.
func New(db *store.Adapter, maxSize int64) *Queue {
	return &Queue{db: db, maxSize: maxSize}
}

// Push appends user to the queue tail. Returns ErrFull if the queue is at
// capacity. Callers must ensure user is not already queued; Push does not
// de-duplicate (the matching engine enforces exclusivity via user state).
func (q *Queue) Push(ctx context.Context, user string) error {
	if q.maxSize > 0 {
		n, err := q.Len(ctx)
		if err != nil {
			return err
		}
		if n >= q.maxSize {
			return ErrFull
		}
	}
	return q.db.RPush(ctx, Key, user)
}

// PopFirst removes and returns the head of the queue. Returns "" with no
// error if the queue is empty.
func (q *Queue) PopFirst(ctx context.Context) (string, error) {
	v, err := q.db.LRange(ctx, Key, 0, 0)
	if err != nil || len(v) == 0 {
		return "", err
	}
	if _, err := q.db.LRem(ctx, Key, 1, v[0]); err != nil {
		return "", err
	}
	return v[0], nil
}

// Remove deletes user from the queue if present (used on /stop while
// queued, or by the sweeper reconciling stale entries).
func (q *Queue) Remove(ctx context.Context, user string) error {
	_, err := q.db.LRem(ctx, Key, 0, user)
	return err
}

// Len returns the current queue length.
func (q *Queue) Len(ctx context.Context) (int64, error) {
	return q.db.LLen(ctx, Key)
}

// Full reports whether the queue is already at its configured capacity.
// Always false when maxSize <= 0 (unbounded).
func (q *Queue) Full(ctx context.Context) (bool, error) {
	if q.maxSize <= 0 {
		return false, nil
	}
	n, err := q.Len(ctx)
	if err != nil {
		return false, err
	}
	return n >= q.maxSize, nil
}

// Snapshot returns every queued user ID in FIFO order.
func (q *Queue) Snapshot(ctx context.Context) ([]string, error) {
	return q.db.LRange(ctx, Key, 0, -1)
}

// PopFirstMatching removes the first element of candidates (an already
// priority-ordered slice of candidates — see matching.Rank) that is still
// present in the queue, via an optimistic LREM loop: LREM only removes a
// member that is actually still there, so a concurrent pop of the same
// candidate by another process simply falls through to the next candidate
// rather than corrupting the queue.
func (q *Queue) PopFirstMatching(ctx context.Context, candidates []string) (string, error) {
	for _, c := range candidates {
		n, err := q.db.LRem(ctx, Key, 1, c)
		if err != nil {
			return "", err
		}
		if n == 1 {
			return c, nil
		}
	}
	return "", nil
}
