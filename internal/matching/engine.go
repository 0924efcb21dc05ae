package matching

import (
	"context"
	"time"

	"github.com/whisper/anonrelay/internal/moderation"
	"github.com/whisper/anonrelay/internal/profile"
	"github.com/whisper/anonrelay/internal/queue"
	"github.com/whisper/anonrelay/internal/rating"
	"github.com/whisper/anonrelay/internal/store"
)

// Outcome classifies the result of FindPartner.
type Outcome int

const (
	// Queued means no compatible candidate was available; the caller was
	// appended to the waiting queue.
	Queued Outcome = iota
	// Matched means the caller was paired with PartnerID immediately.
	Matched
	// Rejected means the caller is ineligible to enter matching at all
	// (banned or toxic) and nothing was changed.
	Rejected
	// QueueFull means no immediate match was found and the waiting queue
	// is already at its configured capacity; the caller was left IDLE
	// rather than enqueued.
	QueueFull
)

// Result is the outcome of one FindPartner call.
type Result struct {
	Outcome   Outcome
	PartnerID string
}

// Engine implements spec.md §4.3's matching algorithm: gather the waiting
// queue, filter out incompatible and toxic candidates, rank the rest by
// rating priority, and hand the ordered list to the store's atomic
// join-or-match script.
type Engine struct {
	db       *store.Adapter
	queue    *queue.Queue
	profiles *profile.Reader
	ratings  *rating.Store
	bans     *moderation.Store
	pairTTL  time.Duration
}

// New builds a matching Engine from its component stores. pairTTL is the
// soft-expiry window applied to both participants' pair/state keys on
// match (spec.md §4.1); it is refreshed on every relayed message, not
// re-derived here.
func New(db *store.Adapter, q *queue.Queue, profiles *profile.Reader, ratings *rating.Store, bans *moderation.Store, pairTTL time.Duration) *Engine {
	return &Engine{db: db, queue: q, profiles: profiles, ratings: ratings, bans: bans, pairTTL: pairTTL}
}

// FindPartner attempts to pair userID with a waiting candidate, or queues
// them if none qualifies. Callers are expected to have already verified
// the caller's state is IDLE; FindPartner does not re-check state itself
// since that check belongs to the router's command handling, which also
// needs to report why a /chat was refused.
func (e *Engine) FindPartner(ctx context.Context, userID string) (Result, error) {
	banned, err := e.bans.IsBanned(ctx, userID)
	if err != nil {
		return Result{}, err
	}
	if banned {
		return Result{Outcome: Rejected}, nil
	}

	me, err := LoadCandidate(ctx, e.profiles, e.ratings, userID)
	if err != nil {
		return Result{}, err
	}
	if me.Rating.Toxic() {
		return Result{Outcome: Rejected}, nil
	}

	genderOn, err := e.bans.GenderFilterEnabled(ctx)
	if err != nil {
		return Result{}, err
	}
	regionalOn, err := e.bans.RegionalFilterEnabled(ctx)
	if err != nil {
		return Result{}, err
	}

	snapshotIDs, err := e.queue.Snapshot(ctx)
	if err != nil {
		return Result{}, err
	}

	snapshot := make([]Candidate, 0, len(snapshotIDs))
	for _, id := range snapshotIDs {
		if id == userID {
			continue
		}
		bannedCandidate, err := e.bans.IsBanned(ctx, id)
		if err != nil {
			return Result{}, err
		}
		if bannedCandidate {
			continue
		}
		c, err := LoadCandidate(ctx, e.profiles, e.ratings, id)
		if err != nil {
			return Result{}, err
		}
		snapshot = append(snapshot, c)
	}

	ranked := Rank(me, snapshot, genderOn, regionalOn)

	// No candidate survived filtering, so join_or_match would only push
	// the caller onto the queue tail. Enforce the configured cap here,
	// since the script itself always pushes unconditionally.
	if len(ranked) == 0 {
		full, err := e.queue.Full(ctx)
		if err != nil {
			return Result{}, err
		}
		if full {
			return Result{Outcome: QueueFull}, nil
		}
	}

	partner, err := e.db.JoinOrMatch(ctx, queue.Key, userID, int(e.pairTTL.Seconds()), ranked)
	if err != nil {
		return Result{}, err
	}
	if partner == "" {
		return Result{Outcome: Queued}, nil
	}
	return Result{Outcome: Matched, PartnerID: partner}, nil
}

// Leave removes userID from the waiting queue without attempting a match,
// used by /stop while IN_QUEUE. The caller is responsible for resetting
// state to IDLE afterward.
func (e *Engine) Leave(ctx context.Context, userID string) error {
	return e.queue.Remove(ctx, userID)
}
