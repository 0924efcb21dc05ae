package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T) (*Limiter, context.Context) {
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
	return NewLimiter(rdb), ctx
}

func TestAllow_UnderLimit(t *testing.T) {
	l, ctx := newTestLimiter(t)
	rule := Rule{Key: "rl:test:", Limit: 3, Window: time.Minute}

	for i := 0; i < 3; i++ {
		ok, err := l.Allow(ctx, "alice", rule)
		if err != nil || !ok {
			t.Fatalf("Allow #%d = %v, %v, want true", i, ok, err)
		}
	}
}

func TestAllow_BreachesLimit(t *testing.T) {
	l, ctx := newTestLimiter(t)
	rule := Rule{Key: "rl:test:", Limit: 2, Window: time.Minute}

	l.Allow(ctx, "alice", rule)
	l.Allow(ctx, "alice", rule)
	ok, err := l.Allow(ctx, "alice", rule)
	if err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if ok {
		t.Fatal("expected third call to be rate limited")
	}
}

func TestAllow_IndependentIdentifiers(t *testing.T) {
	l, ctx := newTestLimiter(t)
	rule := Rule{Key: "rl:test:", Limit: 1, Window: time.Minute}

	l.Allow(ctx, "alice", rule)
	ok, err := l.Allow(ctx, "bob", rule)
	if err != nil || !ok {
		t.Fatalf("Allow(bob) = %v, %v, want true (separate identifier)", ok, err)
	}
}

func TestRemaining(t *testing.T) {
	l, ctx := newTestLimiter(t)
	rule := Rule{Key: "rl:test:", Limit: 5, Window: time.Minute}

	remaining, err := l.Remaining(ctx, "alice", rule)
	if err != nil || remaining != 5 {
		t.Fatalf("Remaining before any call = %d, %v, want 5", remaining, err)
	}

	l.Allow(ctx, "alice", rule)
	l.Allow(ctx, "alice", rule)

	remaining, err = l.Remaining(ctx, "alice", rule)
	if err != nil || remaining != 3 {
		t.Fatalf("Remaining after 2 calls = %d, %v, want 3", remaining, err)
	}
}

func TestRuleNext_StricterThanRuleChat(t *testing.T) {
	if RuleNext.Limit >= RuleChat.Limit {
		t.Fatalf("RuleNext.Limit = %d, want stricter than RuleChat.Limit = %d", RuleNext.Limit, RuleChat.Limit)
	}
}
