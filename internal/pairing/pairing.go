// Package pairing owns the lifecycle of an active chat pair once the
// matching engine has produced one: announcing the match to both sides,
// bumping their chat counters, seeding and clearing feedback windows, and
// tearing the pair down on /stop, /next, a ban, or the inactivity sweeper
// (spec.md §4.4).
package pairing

import (
	"context"
	"log"

	"github.com/google/uuid"

	"github.com/whisper/anonrelay/internal/rating"
	"github.com/whisper/anonrelay/internal/store"
	"github.com/whisper/anonrelay/internal/userstate"
)

// EndReason records why a pair was broken, for the audit trail and for
// choosing the right notification copy.
type EndReason string

const (
	EndUserLeft EndReason = "user_left"
	EndNext     EndReason = "next"
	EndBanned   EndReason = "banned"
	EndInactive EndReason = "inactive"
	EndForceEnd EndReason = "admin_force_end"
	// EndUnreachable is used when the transport reports the partner can no
	// longer be reached (blocked the bot, deleted their account) while
	// relaying a message, per spec.md §6's unreachable-breaks-the-pair rule.
	EndUnreachable EndReason = "partner_unreachable"
)

const pairKeyPrefix = "pair:"

// Events is the subset of the cross-process audit bus pairing cares about.
// Defined here rather than depending on internal/events directly so this
// package stays usable (and testable) without a NATS connection; cmd/relaybot
// wires the real publisher in.
type Events interface {
	PublishPairCreated(ctx context.Context, a, b string)
	PublishPairEnded(ctx context.Context, a, b, reason string)
}

// noopEvents discards every event; used when no bus is configured.
type noopEvents struct{}

func (noopEvents) PublishPairCreated(context.Context, string, string)      {}
func (noopEvents) PublishPairEnded(context.Context, string, string, string) {}

// Manager coordinates pair creation and teardown across the state, rating,
// and store packages so callers (the router, the sweeper, admin flows)
// never have to remember the right order of operations themselves.
type Manager struct {
	db     *store.Adapter
	state  *userstate.Store
	rating *rating.Store
	events Events
}

// New builds a Manager. Pass nil for events to disable audit publishing.
func New(db *store.Adapter, state *userstate.Store, ratingStore *rating.Store, events Events) *Manager {
	if events == nil {
		events = noopEvents{}
	}
	return &Manager{db: db, state: state, rating: ratingStore, events: events}
}

// Announce finalizes a pair the matching engine just created: bumps both
// participants' total_chats counters, clears any stale pending-feedback
// pointer so a finished rating prompt from a prior chat never bleeds into
// the new one, and touches both users' activity so the sweeper's clock
// starts fresh. It does not create the pair/state keys themselves — those
// are already set atomically by store.JoinOrMatch; Announce only handles
// the side effects that script doesn't (and, by design, shouldn't) own.
func (m *Manager) Announce(ctx context.Context, a, b string) error {
	// A fresh correlation id, logged once here, lets an operator grep both
	// participants' later relay/end log lines together without either
	// user's own id (which this system otherwise never prints together).
	sessionID := uuid.New().String()
	log.Printf("[pairing] session=%s announced a=%s b=%s", sessionID, a, b)

	for _, uid := range []string{a, b} {
		if err := m.rating.IncrementTotalChats(ctx, uid); err != nil {
			return err
		}
		if err := m.rating.ClearPending(ctx, uid); err != nil {
			return err
		}
		if err := m.state.TouchActivity(ctx, uid); err != nil {
			return err
		}
	}
	m.events.PublishPairCreated(ctx, a, b)
	return nil
}

// Partner returns the current partner of userID, or "" if they are not
// paired.
func (m *Manager) Partner(ctx context.Context, userID string) (string, error) {
	return m.db.Get(ctx, pairKeyPrefix+userID)
}

// End breaks userID's pair, if any, atomically via store.BreakPair, resets
// both participants to Idle, and seeds a 5-minute pending-feedback window
// for each side pointing at the other. Returns the partner ID that was
// disconnected, or "" if userID had no active pair.
func (m *Manager) End(ctx context.Context, userID string, reason EndReason) (string, error) {
	partner, err := m.Partner(ctx, userID)
	if err != nil {
		return "", err
	}
	if partner == "" {
		return "", nil
	}

	broke, err := m.db.BreakPair(ctx, userID, partner)
	if err != nil {
		return "", err
	}
	if !broke {
		// Already torn down by a concurrent End call (e.g. both sides hit
		// /stop around the same time) — nothing left to do.
		return "", nil
	}

	if err := m.rating.SetPending(ctx, userID, partner); err != nil {
		return "", err
	}
	if err := m.rating.SetPending(ctx, partner, userID); err != nil {
		return "", err
	}

	m.events.PublishPairEnded(ctx, userID, partner, string(reason))
	return partner, nil
}
