// Package matching implements the pairing engine: compatibility filtering,
// rating-based priority ranking, and the atomic join-or-queue decision
// (spec.md §4.3). It reads profiles/preferences/ratings/moderation state but
// owns none of them; the only state it mutates directly is the queue and
// pair/state keys, and only through the store package's atomic scripts.
package matching

import (
	"context"

	"github.com/whisper/anonrelay/internal/profile"
	"github.com/whisper/anonrelay/internal/rating"
)

// Candidate bundles everything the ranking step needs about one queued
// user, fetched once per FindPartner call to avoid repeated round trips.
type Candidate struct {
	UserID  string
	Profile profile.Profile
	Prefs   profile.Preferences
	Rating  rating.Record
}

// satisfies reports whether subjectValue (a gender or a country) satisfies
// filterValue, per spec.md §4.3 rule 3: Any always satisfies, and a missing
// (empty) value satisfies only Any.
func satisfies(subjectValue, filterValue string) bool {
	if filterValue == "" || filterValue == profile.Any {
		return true
	}
	if subjectValue == "" {
		return false
	}
	return subjectValue == filterValue
}

// Compatible implements spec.md §4.3's Compatible(a, b) predicate. toxic
// exclusion is rule 2 but is enforced by the caller filtering the queue
// snapshot before ranking (see Rank), not here, since toxicity needs a
// rating lookup the candidate list already carries.
func Compatible(a, b Candidate, genderFilterEnabled, regionalFilterEnabled bool) bool {
	if a.UserID == b.UserID {
		return false
	}

	if genderFilterEnabled {
		if !satisfies(a.Profile.Gender, b.Prefs.GenderFilter) {
			return false
		}
		if !satisfies(b.Profile.Gender, a.Prefs.GenderFilter) {
			return false
		}
	}

	if regionalFilterEnabled {
		if !satisfies(a.Profile.Country, b.Prefs.CountryFilter) {
			return false
		}
		if !satisfies(b.Profile.Country, a.Prefs.CountryFilter) {
			return false
		}
	}

	return true
}

// rankTier buckets a candidate for the stable sort in Rank: priority users
// first, then neutral, then low-score-but-not-toxic users. Toxic users are
// excluded entirely before ranking.
func rankTier(r rating.Record) int {
	switch {
	case r.Priority():
		return 0
	case r.Score() < 50:
		return 2
	default:
		return 1
	}
}

// Rank filters a queue snapshot down to compatible, non-toxic candidates
// for me and stable-sorts them by priority tier, preserving FIFO order
// within a tier (spec.md §4.3's candidate-selection algorithm).
func Rank(me Candidate, snapshot []Candidate, genderFilterEnabled, regionalFilterEnabled bool) []string {
	type ranked = struct {
		id   string
		tier int
	}

	candidates := make([]ranked, 0, len(snapshot))
	for _, c := range snapshot {
		if c.Rating.Toxic() {
			continue
		}
		if !Compatible(me, c, genderFilterEnabled, regionalFilterEnabled) {
			continue
		}
		candidates = append(candidates, ranked{id: c.UserID, tier: rankTier(c.Rating)})
	}

	// Stable sort by tier; equal tiers keep their snapshot (FIFO) order
	// since stableSortByTier only moves an element past strictly larger tiers.
	stableSortByTier(candidates)

	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.id
	}
	return ids
}

func stableSortByTier(c []struct {
	id   string
	tier int
}) {
	// Simple stable insertion sort: candidate lists are bounded by queue
	// size (spec.md's configurable cap), so O(n^2) is fine and keeps the
	// tie-break guarantee explicit without importing sort for a three-way
	// bucket.
	for i := 1; i < len(c); i++ {
		j := i
		for j > 0 && c[j-1].tier > c[j].tier {
			c[j-1], c[j] = c[j], c[j-1]
			j--
		}
	}
}

// LoadCandidate assembles a Candidate for userID from the profile, rating,
// and preference readers. Used both for "me" and for every snapshot member.
func LoadCandidate(ctx context.Context, profiles *profile.Reader, ratings *rating.Store, userID string) (Candidate, error) {
	p, err := profiles.Get(ctx, userID)
	if err != nil {
		return Candidate{}, err
	}
	prefs, err := profiles.Preferences(ctx, userID)
	if err != nil {
		return Candidate{}, err
	}
	r, err := ratings.Get(ctx, userID)
	if err != nil {
		return Candidate{}, err
	}
	return Candidate{UserID: userID, Profile: p, Prefs: prefs, Rating: r}, nil
}
