package moderation

import "time"

// Ban reasons, per spec.md §3.
const (
	ReasonNudity       = "nudity"
	ReasonSpam         = "spam"
	ReasonAbuse        = "abuse"
	ReasonFakeReports  = "fake_reports"
	ReasonHarassment   = "harassment"
)

// ReportThreshold is the number of reports against a user that triggers an
// automatic ban (spec.md §4.7). Every report counts, including repeated
// reports from the same reporter.
const ReportThreshold = 5

// AutoBanDuration is the temporary ban length applied by the auto-ban path.
const AutoBanDuration = 7 * 24 * time.Hour

// Ban mirrors the ban:{uid} hash.
type Ban struct {
	Target      string
	BannedBy    string
	Reason      string
	BannedAt    time.Time
	ExpiresAt   time.Time // zero value means permanent
	IsPermanent bool
	IsAutoBan   bool
}

// Remaining returns the time left on a temporary ban, or zero for a
// permanent one or an already-expired record.
func (b Ban) Remaining(now time.Time) time.Duration {
	if b.IsPermanent || b.ExpiresAt.IsZero() {
		return 0
	}
	d := b.ExpiresAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}
