package rating

import (
	"context"
	"time"
)

const (
	feedbackLockPrefix    = "feedback:"          // feedback:{rater}:{rated}
	pendingFeedbackPrefix = "pending_feedback:"   // pending_feedback:{uid}

	feedbackLockTTL    = 24 * time.Hour
	pendingFeedbackTTL = 5 * time.Minute
)

// SetPending records that userID may rate partnerID within the next 5
// minutes. Called once per participant when a pair breaks (spec.md §4.4).
func (s *Store) SetPending(ctx context.Context, userID, partnerID string) error {
	return s.db.Set(ctx, pendingFeedbackPrefix+userID, partnerID, pendingFeedbackTTL)
}

// ClearPending removes any pending-feedback pointer for userID. Called on
// pair creation so a stale "rate your last partner" prompt never survives
// into a new chat (spec.md §4.4).
func (s *Store) ClearPending(ctx context.Context, userID string) error {
	return s.db.Del(ctx, pendingFeedbackPrefix+userID)
}

// Pending returns the partner userID may still rate, or "" if the window
// has expired or no pair has broken for them recently.
func (s *Store) Pending(ctx context.Context, userID string) (string, error) {
	return s.db.Get(ctx, pendingFeedbackPrefix+userID)
}

// TryLock atomically claims the 24h feedback lock for the ordered pair
// (rater, rated), returning whether the lock was newly acquired. A false
// result means rater already rated rated within the last 24h and the
// rating must be rejected as a duplicate (spec.md invariant 7).
func (s *Store) TryLock(ctx context.Context, rater, rated string) (bool, error) {
	return s.db.SetNX(ctx, feedbackLockPrefix+rater+":"+rated, "1", feedbackLockTTL)
}

// Submit records a rating from rater about rated, honoring the
// at-most-once-per-24h lock and the pending-feedback window. Skip (neither
// positive nor negative) is represented by callers simply not calling
// Submit. Returns ok=false if the lock was already held (duplicate rating)
// without mutating anything further.
func (s *Store) Submit(ctx context.Context, rater, rated string, positive bool) (bool, error) {
	acquired, err := s.TryLock(ctx, rater, rated)
	if err != nil || !acquired {
		return false, err
	}

	if positive {
		if err := s.IncrementPositive(ctx, rated); err != nil {
			return false, err
		}
	} else {
		if err := s.IncrementNegative(ctx, rated); err != nil {
			return false, err
		}
	}
	return true, nil
}
