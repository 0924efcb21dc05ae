// Package rating tracks per-user feedback counters and derives the score,
// toxic, and priority flags that feed back into the matching engine's
// candidate ranking and gating (spec.md §3, §4.3).
package rating

import (
	"context"
	"strconv"

	"github.com/whisper/anonrelay/internal/store"
)

const keyPrefix = "rating:"

// Thresholds from spec.md §3.
const (
	toxicScoreCeiling    = 30.0
	toxicMinTotal        = 5
	priorityScoreFloor   = 70.0
	priorityMinTotal     = 3
	neutralScoreDefault  = 50.0
)

// Record mirrors the rating:{uid} hash.
type Record struct {
	Positive   int
	Negative   int
	TotalChats int
}

// Score returns the derived percentage score, 50.0 (neutral) when the user
// has no positive/negative feedback yet.
func (r Record) Score() float64 {
	total := r.Positive + r.Negative
	if total == 0 {
		return neutralScoreDefault
	}
	return float64(r.Positive) / float64(total) * 100
}

// Toxic reports whether the user should be excluded from matching.
func (r Record) Toxic() bool {
	return r.Score() < toxicScoreCeiling && r.Positive+r.Negative >= toxicMinTotal
}

// Priority reports whether the user should be ranked ahead of neutral
// candidates in the matching queue.
func (r Record) Priority() bool {
	return r.Score() >= priorityScoreFloor && r.TotalChats >= priorityMinTotal
}

// Store reads and writes rating records.
type Store struct {
	db *store.Adapter
}

// New creates a Store backed by db.
func New(db *store.Adapter) *Store {
	return &Store{db: db}
}

// Get returns the rating record for userID, zero-valued (neutral, not
// toxic, not priority) if the user has never been rated.
func (s *Store) Get(ctx context.Context, userID string) (Record, error) {
	h, err := s.db.HGetAll(ctx, keyPrefix+userID)
	if err != nil {
		return Record{}, err
	}
	return Record{
		Positive:   atoi(h["positive"]),
		Negative:   atoi(h["negative"]),
		TotalChats: atoi(h["total_chats"]),
	}, nil
}

// IncrementPositive records one positive rating for userID. Single-field
// HINCRBY, per spec.md §4.6 — one store transaction, no read-modify-write.
func (s *Store) IncrementPositive(ctx context.Context, userID string) error {
	_, err := s.db.HIncrBy(ctx, keyPrefix+userID, "positive", 1)
	return err
}

// IncrementNegative records one negative rating for userID.
func (s *Store) IncrementNegative(ctx context.Context, userID string) error {
	_, err := s.db.HIncrBy(ctx, keyPrefix+userID, "negative", 1)
	return err
}

// IncrementTotalChats bumps the chat counter for userID. Called once per
// participant when a pair is created (spec.md §4.4).
func (s *Store) IncrementTotalChats(ctx context.Context, userID string) error {
	_, err := s.db.HIncrBy(ctx, keyPrefix+userID, "total_chats", 1)
	return err
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
