package moderation

import (
	"context"
	"strconv"
)

// RecordReport increments target's report counter and, when the count
// reaches ReportThreshold and target is not already banned, issues an
// automatic 7-day ban with reason "abuse" (spec.md §4.7). Returns whether
// an auto-ban was applied on this call.
func (s *Store) RecordReport(ctx context.Context, target, reportedBy string) (autoBanned bool, err error) {
	count, err := s.db.Incr(ctx, reportCountKey(target))
	if err != nil {
		return false, err
	}

	if count < ReportThreshold {
		return false, nil
	}

	alreadyBanned, err := s.IsBanned(ctx, target)
	if err != nil {
		return false, err
	}
	if alreadyBanned {
		return false, nil
	}

	if err := s.Ban(ctx, target, ReasonAbuse, "system", AutoBanDuration, true); err != nil {
		return false, err
	}
	return true, nil
}

// ReportCount returns the current report counter for target.
func (s *Store) ReportCount(ctx context.Context, target string) (int64, error) {
	v, err := s.db.Get(ctx, reportCountKey(target))
	if err != nil || v == "" {
		return 0, err
	}
	n, _ := strconv.ParseInt(v, 10, 64)
	return n, nil
}
