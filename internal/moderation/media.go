package moderation

import "context"

const blockedMediaSetKey = "matching:blocked_media_types"

// MediaBlocked reports whether mediaType (e.g. "photo", "voice", "sticker")
// is globally disabled by an admin (spec.md §4.5 step 2). An empty
// mediaType (plain text) is never blocked by this check.
func (s *Store) MediaBlocked(ctx context.Context, mediaType string) (bool, error) {
	if mediaType == "" {
		return false, nil
	}
	return s.db.SIsMember(ctx, blockedMediaSetKey, mediaType)
}

// BlockMediaType disables relay of mediaType until UnblockMediaType is
// called. Used by an admin toggle command outside the core command set
// SPEC_FULL.md names explicitly; exposed here so the router's gate has
// something concrete to enforce even before that admin surface exists.
func (s *Store) BlockMediaType(ctx context.Context, mediaType string) error {
	return s.db.SAdd(ctx, blockedMediaSetKey, mediaType)
}

// UnblockMediaType re-enables relay of a previously blocked media type.
func (s *Store) UnblockMediaType(ctx context.Context, mediaType string) error {
	return s.db.SRem(ctx, blockedMediaSetKey, mediaType)
}
