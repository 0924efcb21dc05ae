// Package sweeper runs the background inactivity sweep: a ticker-driven
// loop that breaks pairs and drops queue entries whose participants have
// gone quiet past the chat timeout (spec.md §4.5's inactivity rule). It runs
// as its own process (cmd/sweeper) and in a goroutine of cmd/relaybot,
// cooperating with any number of relay bot processes through the same Redis
// state.
package sweeper

import (
	"context"
	"log"
	"time"

	"github.com/whisper/anonrelay/internal/pairing"
	"github.com/whisper/anonrelay/internal/queue"
	"github.com/whisper/anonrelay/internal/store"
	"github.com/whisper/anonrelay/internal/transport"
	"github.com/whisper/anonrelay/internal/userstate"
)

// tickDivisor sets the sweep interval relative to the chat timeout: spec.md
// calls for a cadence of roughly 1/10th the timeout so a stale pair is
// never left standing for more than ~10% past its deadline.
const tickDivisor = 10

// Notifier is the narrow slice of transport.Transport the sweeper needs to
// tell a disconnected user their partner went quiet. Defined locally so
// this package doesn't have to depend on a concrete transport.
type Notifier interface {
	SendText(ctx context.Context, userID, text string, kb transport.Keyboard) error
}

// Sweeper periodically reconciles stale state: pairs whose last-activity
// timestamp exceeded chatTimeout, and queue entries for users whose state
// key expired without the queue entry being cleaned up (e.g. a process
// crash between RPUSH and SET EX).
type Sweeper struct {
	db          *store.Adapter
	state       *userstate.Store
	queue       *queue.Queue
	pairing     *pairing.Manager
	notifier    Notifier
	chatTimeout time.Duration
}

// New builds a Sweeper. notifier may be nil to disable user-facing
// inactivity notices (tests, or a dry-run sweep).
func New(db *store.Adapter, state *userstate.Store, q *queue.Queue, pm *pairing.Manager, notifier Notifier, chatTimeout time.Duration) *Sweeper {
	return &Sweeper{db: db, state: state, queue: q, pairing: pm, notifier: notifier, chatTimeout: chatTimeout}
}

// Run blocks, sweeping on a fixed interval until ctx is canceled.
func (s *Sweeper) Run(ctx context.Context) {
	interval := s.chatTimeout / tickDivisor
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[sweeper] stopped")
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

// sweepOnce performs one sweep pass: every queued user whose activity
// timestamp is older than chatTimeout is dropped from the queue and reset
// to Idle; every paired user in the same state is disconnected via
// pairing.Manager.End, after which sweepPairs sends the remaining side an
// inactivity notice itself.
func (s *Sweeper) sweepOnce(ctx context.Context) {
	now := time.Now().Unix()
	cutoff := now - int64(s.chatTimeout.Seconds())

	waiting, err := s.queue.Snapshot(ctx)
	if err != nil {
		log.Printf("[sweeper] snapshot queue: %v", err)
		return
	}

	for _, userID := range waiting {
		stale, err := s.isStale(ctx, userID, cutoff)
		if err != nil {
			log.Printf("[sweeper] check activity for %s: %v", userID, err)
			continue
		}
		if !stale {
			continue
		}
		if err := s.queue.Remove(ctx, userID); err != nil {
			log.Printf("[sweeper] remove stale queue entry %s: %v", userID, err)
			continue
		}
		if err := s.state.SetIdle(ctx, userID); err != nil {
			log.Printf("[sweeper] reset state for %s: %v", userID, err)
		}
	}

	s.sweepPairs(ctx, cutoff)
}

// sweepPairs scans active pairs by walking paired-but-idle-too-long users.
// Unlike the queue, pair membership has no dedicated index to scan, so the
// sweeper relies on the per-user state/activity keys it already has TTLs
// on: once a user's state key expires, BreakPair naturally finds a
// one-sided or absent pair and is a no-op. This pass exists for the
// narrower case of a pair whose keys are both still alive (TTL refreshed
// by one side relaying) but the other side has gone silent — activity is
// tracked per user, so that user's own staleness is what triggers the end.
func (s *Sweeper) sweepPairs(ctx context.Context, cutoff int64) {
	states, err := s.db.Client().Keys(ctx, "state:*").Result()
	if err != nil {
		log.Printf("[sweeper] scan state keys: %v", err)
		return
	}

	for _, key := range states {
		userID := key[len("state:"):]
		st, err := s.state.Get(ctx, userID)
		if err != nil || st != userstate.InChat {
			continue
		}
		stale, err := s.isStale(ctx, userID, cutoff)
		if err != nil || !stale {
			continue
		}

		partner, err := s.pairing.End(ctx, userID, pairing.EndInactive)
		if err != nil {
			log.Printf("[sweeper] end stale pair for %s: %v", userID, err)
			continue
		}
		if partner == "" {
			continue
		}
		if err := s.state.SetIdle(ctx, userID); err != nil {
			log.Printf("[sweeper] reset state for %s: %v", userID, err)
		}
		if err := s.state.SetIdle(ctx, partner); err != nil {
			log.Printf("[sweeper] reset state for %s: %v", partner, err)
		}
		s.notify(ctx, partner, "Your chat partner went quiet and the session ended. Send /chat to find someone new.")
	}
}

func (s *Sweeper) isStale(ctx context.Context, userID string, cutoff int64) (bool, error) {
	last, err := s.state.LastActivity(ctx, userID)
	if err != nil {
		return false, err
	}
	if last == 0 {
		// No activity ever recorded — treat as stale only if the user has
		// been in this state at least as long as one sweep window, which
		// the caller's cutoff already encodes relative to "now".
		return true, nil
	}
	return last < cutoff, nil
}

func (s *Sweeper) notify(ctx context.Context, userID, text string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.SendText(ctx, userID, text, nil); err != nil {
		log.Printf("[sweeper] notify %s: %v", userID, err)
	}
}
