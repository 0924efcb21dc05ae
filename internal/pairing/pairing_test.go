package pairing

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/whisper/anonrelay/internal/rating"
	"github.com/whisper/anonrelay/internal/store"
	"github.com/whisper/anonrelay/internal/userstate"
)

type recordingEvents struct {
	created [][2]string
	ended   []struct {
		a, b   string
		reason string
	}
}

func (r *recordingEvents) PublishPairCreated(_ context.Context, a, b string) {
	r.created = append(r.created, [2]string{a, b})
}

func (r *recordingEvents) PublishPairEnded(_ context.Context, a, b, reason string) {
	r.ended = append(r.ended, struct {
		a, b   string
		reason string
	}{a, b, reason})
}

func newTestManager(t *testing.T) (*Manager, *store.Adapter, *recordingEvents, context.Context) {
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
	events := &recordingEvents{}
	mgr := New(db, userstate.New(db, time.Hour), rating.New(db), events)
	return mgr, db, events, ctx
}

func TestAnnounce_BumpsCountersAndClearsPending(t *testing.T) {
	mgr, db, events, ctx := newTestManager(t)
	ratings := rating.New(db)

	ratings.SetPending(ctx, "alice", "someoneElse")

	if err := mgr.Announce(ctx, "alice", "bob"); err != nil {
		t.Fatalf("Announce: %v", err)
	}

	rec, err := ratings.Get(ctx, "alice")
	if err != nil || rec.TotalChats != 1 {
		t.Fatalf("alice TotalChats = %d, %v, want 1", rec.TotalChats, err)
	}

	pending, err := ratings.Pending(ctx, "alice")
	if err != nil || pending != "" {
		t.Fatalf("Pending after Announce = %q, %v, want empty", pending, err)
	}

	if len(events.created) != 1 || events.created[0] != [2]string{"alice", "bob"} {
		t.Fatalf("events.created = %+v", events.created)
	}
}

func TestEnd_NoPairIsNoop(t *testing.T) {
	mgr, _, _, ctx := newTestManager(t)

	partner, err := mgr.End(ctx, "alice", EndUserLeft)
	if err != nil {
		t.Fatalf("End: %v", err)
	}
	if partner != "" {
		t.Fatalf("partner = %q, want empty", partner)
	}
}

func TestEnd_BreaksPairAndSeedsFeedback(t *testing.T) {
	mgr, db, events, ctx := newTestManager(t)
	ratings := rating.New(db)

	if _, err := db.JoinOrMatch(ctx, "queue:waiting", "bob", 3600, nil); err != nil {
		t.Fatalf("seed queue: %v", err)
	}
	partner, err := db.JoinOrMatch(ctx, "queue:waiting", "alice", 3600, []string{"bob"})
	if err != nil || partner != "bob" {
		t.Fatalf("seed pair: %q, %v", partner, err)
	}

	disconnected, err := mgr.End(ctx, "alice", EndNext)
	if err != nil {
		t.Fatalf("End: %v", err)
	}
	if disconnected != "bob" {
		t.Fatalf("disconnected = %q, want bob", disconnected)
	}

	if p, err := mgr.Partner(ctx, "alice"); err != nil || p != "" {
		t.Fatalf("alice partner after End = %q, %v, want empty", p, err)
	}

	alicePending, err := ratings.Pending(ctx, "alice")
	if err != nil || alicePending != "bob" {
		t.Fatalf("alice pending = %q, %v, want bob", alicePending, err)
	}
	bobPending, err := ratings.Pending(ctx, "bob")
	if err != nil || bobPending != "alice" {
		t.Fatalf("bob pending = %q, %v, want alice", bobPending, err)
	}

	if len(events.ended) != 1 || events.ended[0].reason != string(EndNext) {
		t.Fatalf("events.ended = %+v", events.ended)
	}
}

func TestEnd_SecondCallIsNoop(t *testing.T) {
	mgr, db, _, ctx := newTestManager(t)

	db.JoinOrMatch(ctx, "queue:waiting", "bob", 3600, nil)
	db.JoinOrMatch(ctx, "queue:waiting", "alice", 3600, []string{"bob"})

	if _, err := mgr.End(ctx, "alice", EndUserLeft); err != nil {
		t.Fatalf("first End: %v", err)
	}
	partner, err := mgr.End(ctx, "bob", EndUserLeft)
	if err != nil {
		t.Fatalf("second End: %v", err)
	}
	if partner != "" {
		t.Fatalf("second End partner = %q, want empty (pair already broken)", partner)
	}
}
