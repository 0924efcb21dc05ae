package profile

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/whisper/anonrelay/internal/store"
)

func newTestReader(t *testing.T) (*Reader, *store.Adapter, context.Context) {
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
	return New(db), db, ctx
}

func TestGet_MissingProfileIsZeroValue(t *testing.T) {
	r, _, ctx := newTestReader(t)

	p, err := r.Get(ctx, "alice")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if p != (Profile{}) {
		t.Fatalf("Get on missing profile = %+v, want zero value", p)
	}
}

func TestGet_ReadsStoredFields(t *testing.T) {
	r, db, ctx := newTestReader(t)

	if err := db.HSet(ctx, "profile:alice", map[string]interface{}{
		"gender": "Female", "country": "FR", "nickname": "Alice",
	}); err != nil {
		t.Fatalf("HSet: %v", err)
	}

	p, err := r.Get(ctx, "alice")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	want := Profile{Gender: "Female", Country: "FR", Nickname: "Alice"}
	if p != want {
		t.Fatalf("Get = %+v, want %+v", p, want)
	}
}

func TestPreferences_DefaultsToAny(t *testing.T) {
	r, _, ctx := newTestReader(t)

	prefs, err := r.Preferences(ctx, "alice")
	if err != nil {
		t.Fatalf("Preferences: %v", err)
	}
	if prefs.GenderFilter != Any || prefs.CountryFilter != Any {
		t.Fatalf("Preferences on unset user = %+v, want both Any", prefs)
	}
}

func TestPreferences_ReadsStoredFilters(t *testing.T) {
	r, db, ctx := newTestReader(t)

	if err := db.HSet(ctx, "preferences:bob", map[string]interface{}{
		"gender_filter": "Male",
	}); err != nil {
		t.Fatalf("HSet: %v", err)
	}

	prefs, err := r.Preferences(ctx, "bob")
	if err != nil {
		t.Fatalf("Preferences: %v", err)
	}
	if prefs.GenderFilter != "Male" {
		t.Fatalf("GenderFilter = %q, want Male", prefs.GenderFilter)
	}
	if prefs.CountryFilter != Any {
		t.Fatalf("CountryFilter = %q, want Any default when unset", prefs.CountryFilter)
	}
}
