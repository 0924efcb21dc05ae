// Package store provides a typed wrapper over Redis: the single shared
// key/value store that holds all session truth for the relay (state, pair
// map, queue, ratings, bans, rate-limit counters). It exists so that every
// other package talks to Redis through the same small, typed surface
// instead of sprinkling *redis.Client calls across the codebase.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrUnavailable wraps any error returned by the underlying Redis client.
// Callers surface it to users as a generic "service unavailable" notice and
// never attempt partial updates on top of it.
var ErrUnavailable = errors.New("store: unavailable")

// Adapter is a typed wrapper over a Redis client plus the three atomic Lua
// scripts the relay needs for its cross-user mutations.
type Adapter struct {
	rdb *redis.Client

	joinOrMatch *redis.Script
	breakPair   *redis.Script
	forcePair   *redis.Script
}

// New creates an Adapter connected to the given Redis address. It verifies
// the connection with a short-lived ping before returning.
func New(addr string) (*Adapter, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("store: redis connection failed: %w", err)
	}

	return &Adapter{
		rdb:         rdb,
		joinOrMatch: redis.NewScript(joinOrMatchLua),
		breakPair:   redis.NewScript(breakPairLua),
		forcePair:   redis.NewScript(forcePairLua),
	}, nil
}

// NewWithClient wraps an already-constructed Redis client. Used by tests
// that need a specific DB index or options the Addr-only constructor
// doesn't expose.
func NewWithClient(rdb *redis.Client) *Adapter {
	return &Adapter{
		rdb:         rdb,
		joinOrMatch: redis.NewScript(joinOrMatchLua),
		breakPair:   redis.NewScript(breakPairLua),
		forcePair:   redis.NewScript(forcePairLua),
	}
}

// Client returns the underlying Redis client for packages that need direct
// access to calls this wrapper doesn't cover (e.g. SCAN for admin listings).
func (a *Adapter) Client() *redis.Client {
	return a.rdb
}

// Close closes the underlying Redis connection.
func (a *Adapter) Close() error {
	return a.rdb.Close()
}

func wrap(err error) error {
	if err == nil || errors.Is(err, redis.Nil) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

// Get returns the string value for key, or "" with no error if the key is
// absent.
func (a *Adapter) Get(ctx context.Context, key string) (string, error) {
	v, err := a.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return v, wrap(err)
}

// Set stores value at key. A zero ttl means no expiration.
func (a *Adapter) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return wrap(a.rdb.Set(ctx, key, value, ttl).Err())
}

// SetNX stores value at key only if it does not already exist, returning
// whether the key was set.
func (a *Adapter) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	ok, err := a.rdb.SetNX(ctx, key, value, ttl).Result()
	return ok, wrap(err)
}

// Del removes one or more keys.
func (a *Adapter) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return wrap(a.rdb.Del(ctx, keys...).Err())
}

// Exists reports whether key is present.
func (a *Adapter) Exists(ctx context.Context, key string) (bool, error) {
	n, err := a.rdb.Exists(ctx, key).Result()
	return n > 0, wrap(err)
}

// Incr atomically increments key and returns the new value.
func (a *Adapter) Incr(ctx context.Context, key string) (int64, error) {
	n, err := a.rdb.Incr(ctx, key).Result()
	return n, wrap(err)
}

// Expire sets a TTL on an existing key.
func (a *Adapter) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return wrap(a.rdb.Expire(ctx, key, ttl).Err())
}

// TTL returns the remaining time-to-live of key as go-redis reports it: a
// negative duration (-1) for a key with no expiry and -2 for a missing key.
func (a *Adapter) TTL(ctx context.Context, key string) (time.Duration, error) {
	d, err := a.rdb.TTL(ctx, key).Result()
	return d, wrap(err)
}

// LPush prepends values onto a list.
func (a *Adapter) LPush(ctx context.Context, key string, values ...string) error {
	args := make([]interface{}, len(values))
	for i, v := range values {
		args[i] = v
	}
	return wrap(a.rdb.LPush(ctx, key, args...).Err())
}

// RPush appends values onto a list.
func (a *Adapter) RPush(ctx context.Context, key string, values ...string) error {
	args := make([]interface{}, len(values))
	for i, v := range values {
		args[i] = v
	}
	return wrap(a.rdb.RPush(ctx, key, args...).Err())
}

// RPop removes and returns the tail of a list. Returns "" with no error if
// the list is empty.
func (a *Adapter) RPop(ctx context.Context, key string) (string, error) {
	v, err := a.rdb.RPop(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return v, wrap(err)
}

// LRange returns the elements of a list between start and stop (inclusive).
func (a *Adapter) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	v, err := a.rdb.LRange(ctx, key, start, stop).Result()
	return v, wrap(err)
}

// LLen returns the length of a list.
func (a *Adapter) LLen(ctx context.Context, key string) (int64, error) {
	n, err := a.rdb.LLen(ctx, key).Result()
	return n, wrap(err)
}

// LRem removes up to count occurrences of value from a list (count=0 removes
// all occurrences) and returns the number removed.
func (a *Adapter) LRem(ctx context.Context, key string, count int64, value string) (int64, error) {
	n, err := a.rdb.LRem(ctx, key, count, value).Result()
	return n, wrap(err)
}

// SAdd adds members to a set.
func (a *Adapter) SAdd(ctx context.Context, key string, members ...string) error {
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	return wrap(a.rdb.SAdd(ctx, key, args...).Err())
}

// SRem removes members from a set.
func (a *Adapter) SRem(ctx context.Context, key string, members ...string) error {
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	return wrap(a.rdb.SRem(ctx, key, args...).Err())
}

// SMembers returns every member of a set.
func (a *Adapter) SMembers(ctx context.Context, key string) ([]string, error) {
	v, err := a.rdb.SMembers(ctx, key).Result()
	return v, wrap(err)
}

// SIsMember reports whether member is in the set at key.
func (a *Adapter) SIsMember(ctx context.Context, key, member string) (bool, error) {
	ok, err := a.rdb.SIsMember(ctx, key, member).Result()
	return ok, wrap(err)
}

// HGet returns one field of a hash.
func (a *Adapter) HGet(ctx context.Context, key, field string) (string, error) {
	v, err := a.rdb.HGet(ctx, key, field).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return v, wrap(err)
}

// HSet sets one or more fields of a hash.
func (a *Adapter) HSet(ctx context.Context, key string, fields map[string]interface{}) error {
	return wrap(a.rdb.HSet(ctx, key, fields).Err())
}

// HGetAll returns every field of a hash. The result is an empty, non-nil map
// if the key does not exist.
func (a *Adapter) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	v, err := a.rdb.HGetAll(ctx, key).Result()
	return v, wrap(err)
}

// HIncrBy atomically increments one field of a hash and returns the new value.
func (a *Adapter) HIncrBy(ctx context.Context, key, field string, by int64) (int64, error) {
	n, err := a.rdb.HIncrBy(ctx, key, field, by).Result()
	return n, wrap(err)
}

// Pipeline exposes a raw pipeline for call sites that need to batch several
// operations atomically-ish (pipelines are not transactions; the
// script-backed JoinOrMatch, BreakPair and ForcePair are the atomic ones).
func (a *Adapter) Pipeline() redis.Pipeliner {
	return a.rdb.Pipeline()
}
