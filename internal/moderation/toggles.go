package moderation

import "context"

const (
	genderToggleKey   = "matching:gender_filter_enabled"
	regionalToggleKey = "matching:regional_filter_enabled"
)

// GenderFilterEnabled reports the global gender-filter toggle. Absence of
// the key defaults to true, per spec.md §3 ("Default on absence = true for
// backward compatibility").
func (s *Store) GenderFilterEnabled(ctx context.Context) (bool, error) {
	return s.toggle(ctx, genderToggleKey)
}

// RegionalFilterEnabled reports the global country-filter toggle. Same
// default-true-on-absence rule as GenderFilterEnabled.
func (s *Store) RegionalFilterEnabled(ctx context.Context) (bool, error) {
	return s.toggle(ctx, regionalToggleKey)
}

func (s *Store) toggle(ctx context.Context, key string) (bool, error) {
	v, err := s.db.Get(ctx, key)
	if err != nil {
		return true, err
	}
	if v == "" {
		return true, nil
	}
	return v == "1", nil
}

// SetGenderFilterEnabled flips the global gender-filter toggle. Only future
// matches are affected — users already paired keep their chat regardless
// of preference agreement (spec.md §9 design note).
func (s *Store) SetGenderFilterEnabled(ctx context.Context, enabled bool) error {
	return s.db.Set(ctx, genderToggleKey, boolString(enabled), 0)
}

// SetRegionalFilterEnabled flips the global country-filter toggle.
func (s *Store) SetRegionalFilterEnabled(ctx context.Context, enabled bool) error {
	return s.db.Set(ctx, regionalToggleKey, boolString(enabled), 0)
}

func boolString(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
