package sweeper

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/whisper/anonrelay/internal/pairing"
	"github.com/whisper/anonrelay/internal/queue"
	"github.com/whisper/anonrelay/internal/rating"
	"github.com/whisper/anonrelay/internal/store"
	"github.com/whisper/anonrelay/internal/transport"
	"github.com/whisper/anonrelay/internal/userstate"
)

type recordingNotifier struct {
	sent []string
}

func (r *recordingNotifier) SendText(_ context.Context, userID, _ string, _ transport.Keyboard) error {
	r.sent = append(r.sent, userID)
	return nil
}

func newTestSweeper(t *testing.T) (*Sweeper, *store.Adapter, *userstate.Store, *queue.Queue, *recordingNotifier, context.Context) {
	t.Helper()
	rdb := redis.NewClient(&redis.Options{Addr: "localhost:6379", DB: 15})
	ctx := context.Background()
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not available: %v", err)
	}
	rdb.FlushDB(ctx)
	t.Cleanup(func() {
		rdb.FlushDB(ctx)
		rdb.Close()
	})

	db := store.NewWithClient(rdb)
	state := userstate.New(db, time.Hour)
	q := queue.New(db, 0)
	pm := pairing.New(db, state, rating.New(db), nil)
	notifier := &recordingNotifier{}
	sw := New(db, state, q, pm, notifier, time.Minute)
	return sw, db, state, q, notifier, ctx
}

func TestSweepOnce_DropsStaleQueueEntry(t *testing.T) {
	sw, db, state, q, _, ctx := newTestSweeper(t)

	if err := q.Push(ctx, "alice"); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if err := state.Set(ctx, "alice", userstate.InQueue); err != nil {
		t.Fatalf("Set: %v", err)
	}
	staleTs := time.Now().Add(-2 * time.Hour).Unix()
	if err := db.Set(ctx, userstate.ActivityPrefix+"alice", strconv.FormatInt(staleTs, 10), 0); err != nil {
		t.Fatalf("seed stale activity: %v", err)
	}

	sw.sweepOnce(ctx)

	n, err := q.Len(ctx)
	if err != nil || n != 0 {
		t.Fatalf("queue length after sweep = %d, %v, want 0", n, err)
	}
	st, err := state.Get(ctx, "alice")
	if err != nil || st != userstate.Idle {
		t.Fatalf("state after sweep = %v, %v, want Idle", st, err)
	}
}

func TestSweepOnce_KeepsFreshQueueEntry(t *testing.T) {
	sw, db, state, q, _, ctx := newTestSweeper(t)

	if err := q.Push(ctx, "alice"); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if err := state.Set(ctx, "alice", userstate.InQueue); err != nil {
		t.Fatalf("Set: %v", err)
	}
	freshTs := time.Now().Unix()
	if err := db.Set(ctx, userstate.ActivityPrefix+"alice", strconv.FormatInt(freshTs, 10), 0); err != nil {
		t.Fatalf("seed fresh activity: %v", err)
	}

	sw.sweepOnce(ctx)

	n, err := q.Len(ctx)
	if err != nil || n != 1 {
		t.Fatalf("queue length after sweep = %d, %v, want 1 (fresh entry kept)", n, err)
	}
}

func TestSweepPairs_EndsStalePairAndNotifiesPartner(t *testing.T) {
	sw, db, state, _, notifier, ctx := newTestSweeper(t)

	if _, err := db.JoinOrMatch(ctx, "queue:waiting", "bob", 3600, nil); err != nil {
		t.Fatalf("seed queue: %v", err)
	}
	if _, err := db.JoinOrMatch(ctx, "queue:waiting", "alice", 3600, []string{"bob"}); err != nil {
		t.Fatalf("seed pair: %v", err)
	}

	staleTs := time.Now().Add(-2 * time.Hour).Unix()
	if err := db.Set(ctx, userstate.ActivityPrefix+"alice", strconv.FormatInt(staleTs, 10), 0); err != nil {
		t.Fatalf("seed stale activity for alice: %v", err)
	}
	freshTs := time.Now().Unix()
	if err := db.Set(ctx, userstate.ActivityPrefix+"bob", strconv.FormatInt(freshTs, 10), 0); err != nil {
		t.Fatalf("seed fresh activity for bob: %v", err)
	}

	cutoff := time.Now().Add(-time.Minute).Unix()
	sw.sweepPairs(ctx, cutoff)

	st, err := state.Get(ctx, "alice")
	if err != nil || st != userstate.Idle {
		t.Fatalf("alice state after sweep = %v, %v, want Idle", st, err)
	}
	stBob, err := state.Get(ctx, "bob")
	if err != nil || stBob != userstate.Idle {
		t.Fatalf("bob state after sweep = %v, %v, want Idle", stBob, err)
	}

	found := false
	for _, id := range notifier.sent {
		if id == "bob" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected bob to be notified, notifier.sent = %v", notifier.sent)
	}
}

