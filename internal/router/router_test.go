package router

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/whisper/anonrelay/internal/adminflow"
	"github.com/whisper/anonrelay/internal/matching"
	"github.com/whisper/anonrelay/internal/moderation"
	"github.com/whisper/anonrelay/internal/pairing"
	"github.com/whisper/anonrelay/internal/profile"
	"github.com/whisper/anonrelay/internal/queue"
	"github.com/whisper/anonrelay/internal/rating"
	"github.com/whisper/anonrelay/internal/ratelimit"
	"github.com/whisper/anonrelay/internal/store"
	"github.com/whisper/anonrelay/internal/transport"
	"github.com/whisper/anonrelay/internal/userstate"
)

type relayCall struct {
	fromChatID    int64
	fromMessageID int
	toUserID      string
}

type fakeTransport struct {
	sent     map[string][]string
	relays   []relayCall
	relayErr error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{sent: make(map[string][]string)}
}

func (f *fakeTransport) Updates(ctx context.Context) <-chan transport.Update { return nil }

func (f *fakeTransport) SendText(_ context.Context, userID, text string, _ transport.Keyboard) error {
	f.sent[userID] = append(f.sent[userID], text)
	return nil
}

func (f *fakeTransport) Relay(_ context.Context, fromChatID int64, fromMessageID int, toUserID string) error {
	f.relays = append(f.relays, relayCall{fromChatID, fromMessageID, toUserID})
	return f.relayErr
}

func (f *fakeTransport) AnswerCallback(context.Context, string, string) error { return nil }

func (f *fakeTransport) Close() error { return nil }

type harness struct {
	r    *Router
	tr   *fakeTransport
	db   *store.Adapter
	bans *moderation.Store
}

func newHarness(t *testing.T, admins ...string) (*harness, context.Context) {
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
	profiles := profile.New(db)
	ratings := rating.New(db)
	bans := moderation.New(db)
	pm := pairing.New(db, state, ratings, nil)
	eng := matching.New(db, q, profiles, ratings, bans, time.Hour)
	flows := adminflow.New(db)
	limiter := ratelimit.NewLimiter(rdb)
	filter := moderation.NewFilter()

	adminSet := make(map[string]bool)
	for _, a := range admins {
		adminSet[a] = true
	}

	tr := newFakeTransport()
	r := New(Deps{
		DB:        db,
		Transport: tr,
		Bans:      bans,
		Filter:    filter,
		Limiter:   limiter,
		State:     state,
		Queue:     q,
		Pairing:   pm,
		Matching:  eng,
		Profiles:  profiles,
		Ratings:   ratings,
		Flows:     flows,
		IsAdmin:   func(id string) bool { return adminSet[id] },
		PairTTL:   time.Hour,
	})
	return &harness{r: r, tr: tr, db: db, bans: bans}, ctx
}

func cmd(userID string, chatID int64, name, args string) transport.Update {
	return transport.Update{UserID: userID, ChatID: chatID, Command: &transport.CommandUpdate{Name: name, Args: args}}
}

func msg(userID string, chatID int64, text string, messageID int) transport.Update {
	return transport.Update{UserID: userID, ChatID: chatID, Message: &transport.MessageUpdate{Text: text, MessageID: messageID}}
}

func TestDispatch_BannedUserDropped(t *testing.T) {
	h, ctx := newHarness(t)
	if err := h.bans.Ban(ctx, "alice", moderation.ReasonSpam, "admin", 0, false); err != nil {
		t.Fatalf("Ban: %v", err)
	}

	h.r.Dispatch(ctx, msg("alice", 1, "hello", 1))

	if len(h.tr.relays) != 0 {
		t.Fatalf("relays = %v, want none for a banned user", h.tr.relays)
	}
	if len(h.tr.sent["alice"]) == 0 {
		t.Fatalf("expected a ban notice sent to alice")
	}
}

func TestDispatch_ChatQueuesThenMatches(t *testing.T) {
	h, ctx := newHarness(t)

	h.r.Dispatch(ctx, cmd("alice", 1, "chat", ""))
	st, err := userstate.New(h.db, time.Hour).Get(ctx, "alice")
	if err != nil || st != userstate.InQueue {
		t.Fatalf("alice state after solo /chat = %v, %v, want IN_QUEUE", st, err)
	}

	h.r.Dispatch(ctx, cmd("bob", 2, "chat", ""))

	stA, _ := userstate.New(h.db, time.Hour).Get(ctx, "alice")
	stB, _ := userstate.New(h.db, time.Hour).Get(ctx, "bob")
	if stA != userstate.InChat || stB != userstate.InChat {
		t.Fatalf("states after match: alice=%v bob=%v, want both IN_CHAT", stA, stB)
	}
	if len(h.tr.sent["alice"]) == 0 || len(h.tr.sent["bob"]) == 0 {
		t.Fatalf("expected both sides to receive a match notice")
	}
}

func TestDispatch_ChatQueueFullRepliesWithoutEnqueuing(t *testing.T) {
	h, ctx := newHarness(t)

	// Swap in a queue capped at the one slot bob already occupies, and a
	// gender filter that rules bob out as a candidate, so alice's /chat
	// falls through to the enqueue path that the cap should now block.
	q := queue.New(h.db, 1)
	if err := h.db.HSet(ctx, "profile:bob", map[string]interface{}{"gender": "Male"}); err != nil {
		t.Fatalf("HSet bob profile: %v", err)
	}
	if err := q.Push(ctx, "bob"); err != nil {
		t.Fatalf("Push bob: %v", err)
	}
	state := userstate.New(h.db, time.Hour)
	ratings := rating.New(h.db)
	eng := matching.New(h.db, q, profile.New(h.db), ratings, h.bans, time.Hour)
	h.r.matching = eng
	h.r.q = q

	if err := h.db.HSet(ctx, "profile:alice", map[string]interface{}{"gender": "Female"}); err != nil {
		t.Fatalf("HSet alice profile: %v", err)
	}
	if err := h.db.HSet(ctx, "preferences:alice", map[string]interface{}{"gender_filter": "Female"}); err != nil {
		t.Fatalf("HSet alice prefs: %v", err)
	}

	h.r.Dispatch(ctx, cmd("alice", 1, "chat", ""))

	st, err := state.Get(ctx, "alice")
	if err != nil || st == userstate.InQueue {
		t.Fatalf("alice state after rejected /chat = %v, %v, want not IN_QUEUE", st, err)
	}
	n, err := q.Len(ctx)
	if err != nil || n != 1 {
		t.Fatalf("queue length = %d, %v, want unchanged 1 (bob still waiting)", n, err)
	}
	sent := h.tr.sent["alice"]
	if len(sent) == 0 || sent[len(sent)-1] != "The waiting queue is full right now. Try /chat again in a bit." {
		t.Fatalf("alice messages = %v, want a queue-full reply", sent)
	}
}

func TestDispatch_MessageRelayedToPartner(t *testing.T) {
	h, ctx := newHarness(t)
	h.r.Dispatch(ctx, cmd("alice", 1, "chat", ""))
	h.r.Dispatch(ctx, cmd("bob", 2, "chat", ""))

	h.r.Dispatch(ctx, msg("alice", 1, "hi bob", 42))

	if len(h.tr.relays) != 1 {
		t.Fatalf("relays = %v, want exactly 1", h.tr.relays)
	}
	if h.tr.relays[0].toUserID != "bob" || h.tr.relays[0].fromMessageID != 42 {
		t.Fatalf("relay = %+v, want to bob with messageID 42", h.tr.relays[0])
	}
}

func TestDispatch_MessageWithoutPartnerDropped(t *testing.T) {
	h, ctx := newHarness(t)

	h.r.Dispatch(ctx, msg("alice", 1, "hello?", 1))

	if len(h.tr.relays) != 0 {
		t.Fatalf("relays = %v, want none", h.tr.relays)
	}
	if len(h.tr.sent["alice"]) == 0 {
		t.Fatalf("expected a not-in-a-chat notice")
	}
}

func TestDispatch_MessageRateLimited(t *testing.T) {
	h, ctx := newHarness(t)
	h.r.Dispatch(ctx, cmd("alice", 1, "chat", ""))
	h.r.Dispatch(ctx, cmd("bob", 2, "chat", ""))

	for i := 0; i < ratelimit.RuleMessage.Limit; i++ {
		h.r.Dispatch(ctx, msg("alice", 1, "hi", i))
	}
	beforeBreach := len(h.tr.relays)
	h.r.Dispatch(ctx, msg("alice", 1, "one too many", 999))

	if len(h.tr.relays) != beforeBreach {
		t.Fatalf("relay count after breaching limit = %d, want unchanged from %d", len(h.tr.relays), beforeBreach)
	}
}

func TestDispatch_ContentFilterBlocksMessage(t *testing.T) {
	h, ctx := newHarness(t)
	h.r.Dispatch(ctx, cmd("alice", 1, "chat", ""))
	h.r.Dispatch(ctx, cmd("bob", 2, "chat", ""))

	h.r.Dispatch(ctx, msg("alice", 1, "send nudes now", 1))

	if len(h.tr.relays) != 0 {
		t.Fatalf("relays = %v, want none for filtered content", h.tr.relays)
	}
}

func TestDispatch_StopEndsChatAndLeavesQueueState(t *testing.T) {
	h, ctx := newHarness(t)
	h.r.Dispatch(ctx, cmd("alice", 1, "chat", ""))
	h.r.Dispatch(ctx, cmd("bob", 2, "chat", ""))

	h.r.Dispatch(ctx, cmd("alice", 1, "stop", ""))

	state := userstate.New(h.db, time.Hour)
	stA, _ := state.Get(ctx, "alice")
	stB, _ := state.Get(ctx, "bob")
	if stA != userstate.Idle || stB != userstate.Idle {
		t.Fatalf("states after /stop: alice=%v bob=%v, want both IDLE", stA, stB)
	}
}

func TestDispatch_ReportAutoBanAtThreshold(t *testing.T) {
	h, ctx := newHarness(t)

	for i := 0; i < moderation.ReportThreshold; i++ {
		reporter := "reporter" + string(rune('A'+i))
		h.r.Dispatch(ctx, cmd(reporter, int64(i), "report", "target"))
	}

	banned, err := h.bans.IsBanned(ctx, "target")
	if err != nil || !banned {
		t.Fatalf("IsBanned(target) = %v, %v, want true after %d reports", banned, err, moderation.ReportThreshold)
	}
}

func TestDispatch_AdminBanInline(t *testing.T) {
	h, ctx := newHarness(t, "admin1")

	h.r.Dispatch(ctx, cmd("admin1", 1, "ban", "alice spam 24h"))

	banned, err := h.bans.IsBanned(ctx, "alice")
	if err != nil || !banned {
		t.Fatalf("IsBanned(alice) = %v, %v, want true", banned, err)
	}
}

func TestDispatch_AdminBanFlowMultiStep(t *testing.T) {
	h, ctx := newHarness(t, "admin1")

	h.r.Dispatch(ctx, cmd("admin1", 1, "ban", ""))
	h.r.Dispatch(ctx, msg("admin1", 1, "alice", 1))
	h.r.Dispatch(ctx, msg("admin1", 1, "spam", 2))
	h.r.Dispatch(ctx, msg("admin1", 1, "24h", 3))

	banned, ok, err := h.bans.CheckBan(ctx, "alice")
	if err != nil || !ok {
		t.Fatalf("CheckBan(alice) = %v, %v, %v, want a ban on record", banned, ok, err)
	}
	if banned.Reason != "spam" {
		t.Fatalf("ban reason = %q, want spam", banned.Reason)
	}
}
