// Package moderation gates every relay and enqueue operation against bans,
// warnings, and report counts, and holds the two global filter toggles
// the matching engine consults (spec.md §3, §4.7). Bans are stored as a
// hash per user plus a set of banned IDs for admin listing, exactly as
// spec.md §6's key layout specifies.
package moderation

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/whisper/anonrelay/internal/store"
)

const (
	banPrefix          = "ban:"
	bannedSetKey       = "bot:banned_users"
	warningCountPrefix = "warning_count:"
	warningListKey     = "warnings:"       // + {uid}, a list
	warningSetKey      = "bot:warning_list"
	reportCountPrefix  = "stats:"          // + {uid}:report_count
)

// ErrNotBanned is returned by Unban when the target has no active ban.
var ErrNotBanned = errors.New("moderation: not banned")

// Store manages ban, warning, and report state.
type Store struct {
	db *store.Adapter
}

// New creates a Store backed by db.
func New(db *store.Adapter) *Store {
	return &Store{db: db}
}

func reportCountKey(userID string) string {
	return reportCountPrefix + userID + ":report_count"
}

// Ban records a ban on target. duration == 0 means permanent.
func (s *Store) Ban(ctx context.Context, target, reason, bannedBy string, duration time.Duration, isAutoBan bool) error {
	now := time.Now()
	permanent := duration == 0
	fields := map[string]interface{}{
		"banned_by":    bannedBy,
		"reason":       reason,
		"banned_at":    strconv.FormatInt(now.Unix(), 10),
		"is_permanent": strconv.FormatBool(permanent),
		"is_auto_ban":  strconv.FormatBool(isAutoBan),
	}
	if !permanent {
		fields["expires_at"] = strconv.FormatInt(now.Add(duration).Unix(), 10)
	}

	key := banPrefix + target
	if err := s.db.HSet(ctx, key, fields); err != nil {
		return fmt.Errorf("moderation: ban %s: %w", target, err)
	}
	if !permanent {
		if err := s.db.Expire(ctx, key, duration); err != nil {
			return fmt.Errorf("moderation: ban expire %s: %w", target, err)
		}
	}
	return s.db.SAdd(ctx, bannedSetKey, target)
}

// Unban removes a ban from target. Returns ErrNotBanned if target had no
// active ban (idempotent unban is a caller-visible no-op, spec.md invariant
// 8, but the typed error lets callers distinguish "already unbanned" from a
// store failure).
func (s *Store) Unban(ctx context.Context, target string) error {
	banned, err := s.db.Exists(ctx, banPrefix+target)
	if err != nil {
		return err
	}
	if !banned {
		return ErrNotBanned
	}
	if err := s.db.Del(ctx, banPrefix+target); err != nil {
		return err
	}
	return s.db.SRem(ctx, bannedSetKey, target)
}

// CheckBan returns the ban record for target, and ok=false if the user is
// not currently banned.
func (s *Store) CheckBan(ctx context.Context, target string) (Ban, bool, error) {
	h, err := s.db.HGetAll(ctx, banPrefix+target)
	if err != nil {
		return Ban{}, false, err
	}
	if len(h) == 0 {
		return Ban{}, false, nil
	}

	b := Ban{
		Target:      target,
		BannedBy:    h["banned_by"],
		Reason:      h["reason"],
		IsPermanent: h["is_permanent"] == "true",
		IsAutoBan:   h["is_auto_ban"] == "true",
	}
	if v, err := strconv.ParseInt(h["banned_at"], 10, 64); err == nil {
		b.BannedAt = time.Unix(v, 0)
	}
	if v, err := strconv.ParseInt(h["expires_at"], 10, 64); err == nil {
		b.ExpiresAt = time.Unix(v, 0)
	}
	return b, true, nil
}

// IsBanned is a cheap existence check used by the router and command
// dispatcher on every gated operation.
func (s *Store) IsBanned(ctx context.Context, userID string) (bool, error) {
	return s.db.Exists(ctx, banPrefix+userID)
}

// ListBanned returns every currently banned user ID.
func (s *Store) ListBanned(ctx context.Context) ([]string, error) {
	ids, err := s.db.SMembers(ctx, bannedSetKey)
	if err != nil {
		return nil, err
	}
	// Temporary bans expire via the hash TTL; skip set members left behind.
	active := make([]string, 0, len(ids))
	for _, id := range ids {
		banned, err := s.db.Exists(ctx, banPrefix+id)
		if err != nil {
			return nil, err
		}
		if banned {
			active = append(active, id)
		}
	}
	return active, nil
}
