// Package userstate tracks the per-user state machine — IDLE, IN_QUEUE, or
// IN_CHAT — and activity timestamps used by the inactivity sweeper. It is a
// thin typed view over the store package's state:{uid} keys; pair and queue
// membership are owned by the pairing and queue packages respectively, but
// both keep the state key in sync through this package so callers never
// write state: directly.
package userstate

import (
	"context"
	"strconv"
	"time"

	"github.com/whisper/anonrelay/internal/store"
)

// State is one of the three values a user session can be in. The empty
// string (absent key) is treated as Idle.
type State string

const (
	Idle     State = "IDLE"
	InQueue  State = "IN_QUEUE"
	InChat   State = "IN_CHAT"
)

const keyPrefix = "state:"

// ActivityPrefix is the Redis key prefix for per-user activity timestamps,
// used by the sweeper to detect stale pairs/queue entries.
const ActivityPrefix = "activity:"

// Store reads and writes per-user state and activity timestamps.
type Store struct {
	db  *store.Adapter
	ttl time.Duration
}

// New creates a Store backed by db. ttl is the chat-timeout duration applied
// to state and activity keys (spec default: 600s).
func New(db *store.Adapter, ttl time.Duration) *Store {
	return &Store{db: db, ttl: ttl}
}

// Get returns the user's current state. Absence of the key means Idle.
func (s *Store) Get(ctx context.Context, userID string) (State, error) {
	v, err := s.db.Get(ctx, keyPrefix+userID)
	if err != nil {
		return Idle, err
	}
	if v == "" {
		return Idle, nil
	}
	return State(v), nil
}

// Set writes the user's state with the configured TTL.
func (s *Store) Set(ctx context.Context, userID string, state State) error {
	return s.db.Set(ctx, keyPrefix+userID, string(state), s.ttl)
}

// SetIdle clears the user's state to Idle. IDLE has no positive TTL
// requirement (absence already means Idle), but we still write it with a
// short TTL so the key disappears naturally rather than lingering forever.
func (s *Store) SetIdle(ctx context.Context, userID string) error {
	return s.db.Set(ctx, keyPrefix+userID, string(Idle), s.ttl)
}

// TouchActivity refreshes the user's last-activity timestamp and extends
// the TTL on their state and pair keys. Called by the router on every
// relayed message and by the session manager on pair creation.
func (s *Store) TouchActivity(ctx context.Context, userID string) error {
	now := strconv.FormatInt(time.Now().Unix(), 10)
	if err := s.db.Set(ctx, ActivityPrefix+userID, now, s.ttl); err != nil {
		return err
	}
	if err := s.db.Expire(ctx, keyPrefix+userID, s.ttl); err != nil {
		return err
	}
	return s.db.Expire(ctx, "pair:"+userID, s.ttl)
}

// LastActivity returns the unix timestamp of the user's last recorded
// activity, or zero if none is on record.
func (s *Store) LastActivity(ctx context.Context, userID string) (int64, error) {
	v, err := s.db.Get(ctx, ActivityPrefix+userID)
	if err != nil || v == "" {
		return 0, err
	}
	n, _ := strconv.ParseInt(v, 10, 64)
	return n, nil
}
