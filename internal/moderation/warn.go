package moderation

import (
	"context"
	"strconv"
	"time"
)

// Warn appends a warning record for target and bumps their warning counter.
// Warnings never expire and never gate anything on their own — they are
// purely informational for admins and for the report/auto-ban pipeline's
// context.
func (s *Store) Warn(ctx context.Context, target, reason, by string) error {
	entry := by + "|" + reason + "|" + time.Now().UTC().Format(time.RFC3339)
	if err := s.db.RPush(ctx, warningListKey+target, entry); err != nil {
		return err
	}
	if _, err := s.db.Incr(ctx, warningCountPrefix+target); err != nil {
		return err
	}
	return s.db.SAdd(ctx, warningSetKey, target)
}

// WarningCount returns the number of warnings target has accumulated.
func (s *Store) WarningCount(ctx context.Context, target string) (int64, error) {
	v, err := s.db.Get(ctx, warningCountPrefix+target)
	if err != nil || v == "" {
		return 0, err
	}
	n, _ := strconv.ParseInt(v, 10, 64)
	return n, nil
}

// ListWarned returns every user ID that has at least one warning on record.
func (s *Store) ListWarned(ctx context.Context) ([]string, error) {
	return s.db.SMembers(ctx, warningSetKey)
}
