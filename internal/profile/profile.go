// Package profile provides a read-only view over the two opaque hashes the
// relay core consumes but never owns the schema of: a user's profile
// (gender, country, nickname) and their matching preferences (gender
// filter, country filter). Profile editing lives entirely outside this
// repo; this package only reads what that external surface writes.
package profile

import (
	"context"

	"github.com/whisper/anonrelay/internal/store"
)

// Any is the sentinel preference value meaning "no filter on this
// dimension".
const Any = "Any"

const (
	profilePrefix     = "profile:"
	preferencesPrefix = "preferences:"
)

// Profile mirrors the profile:{uid} hash.
type Profile struct {
	Gender   string // "", "Male", "Female", "Other"
	Country  string // "", or an enumerated country code the UI owns
	Nickname string
}

// Preferences mirrors the preferences:{uid} hash. Missing fields default to
// Any per spec.md §3.
type Preferences struct {
	GenderFilter  string // "Male", "Female", or Any
	CountryFilter string // a country code, or Any
}

// Reader reads profile and preference hashes. It never writes them.
type Reader struct {
	db *store.Adapter
}

// New creates a Reader backed by db.
func New(db *store.Adapter) *Reader {
	return &Reader{db: db}
}

// Get returns the stored profile for userID. A user with no profile hash
// yet gets the zero value — every field empty, which compatibility
// treats as "unset" and only ever satisfies an Any filter.
func (r *Reader) Get(ctx context.Context, userID string) (Profile, error) {
	h, err := r.db.HGetAll(ctx, profilePrefix+userID)
	if err != nil {
		return Profile{}, err
	}
	return Profile{
		Gender:   h["gender"],
		Country:  h["country"],
		Nickname: h["nickname"],
	}, nil
}

// Preferences returns the stored preferences for userID, defaulting both
// filters to Any when unset.
func (r *Reader) Preferences(ctx context.Context, userID string) (Preferences, error) {
	h, err := r.db.HGetAll(ctx, preferencesPrefix+userID)
	if err != nil {
		return Preferences{}, err
	}
	p := Preferences{GenderFilter: Any, CountryFilter: Any}
	if v, ok := h["gender_filter"]; ok && v != "" {
		p.GenderFilter = v
	}
	if v, ok := h["country_filter"]; ok && v != "" {
		p.CountryFilter = v
	}
	return p, nil
}
