// Package ratelimit throttles user actions through a Redis fixed-window
// counter: each Rule owns a key namespace, a ceiling, and a window. Allow
// increments the counter for (rule, identifier) and rejects once the
// ceiling is crossed, letting the counter expire at the end of the window
// rather than tracking individual call timestamps (spec.md §3, §4.5).
package ratelimit

import (
	"context"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// Rule is one throttling policy: a Redis key prefix, how many calls are
// allowed inside Window, and the window length itself.
type Rule struct {
	Key    string
	Limit  int
	Window time.Duration
}

// Rate limit rules from spec.md §4.5's command table.
var (
	// RuleMessage bounds relayed messages: 5 every 10 seconds per user.
	RuleMessage = Rule{Key: "rl:msg:", Limit: 5, Window: 10 * time.Second}

	// RuleChat bounds /chat invocations: 10 per minute per user.
	RuleChat = Rule{Key: "rl:chat:", Limit: 10, Window: time.Minute}

	// RuleNext is stricter than RuleChat since /next both breaks a pair and
	// re-enters matching in one call — double the store traffic of /chat.
	RuleNext = Rule{Key: "rl:next:", Limit: 4, Window: time.Minute}

	// RuleReport keeps a flood of reports from becoming its own abuse
	// vector, independent of the message rate.
	RuleReport = Rule{Key: "rl:report:", Limit: 3, Window: time.Minute}
)

// Limiter enforces Rules against a shared Redis instance, so the ceiling
// holds across every horizontally-scaled bot process rather than per
// process (spec.md §5).
type Limiter struct {
	client *redis.Client
}

// NewLimiter builds a Limiter over an existing Redis client.
func NewLimiter(client *redis.Client) *Limiter {
	return &Limiter{client: client}
}

// Allow records one call against rule for identifier and reports whether
// it lands within the ceiling. The counter that INCR creates has no TTL of
// its own, so the call that takes it from 0 to 1 is responsible for arming
// one equal to rule.Window; every other call just reads the running count.
// Any Redis failure along the way fails open — a Redis outage blocking
// chat is worse than a user briefly slipping past a limit — and is
// reported to the caller so it can be logged upstream too.
func (l *Limiter) Allow(ctx context.Context, identifier string, rule Rule) (bool, error) {
	key := rule.Key + identifier

	n, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		log.Printf("[ratelimit] incr %s failed, allowing request: %v", key, err)
		return true, err
	}

	if n == 1 {
		if err := l.client.Expire(ctx, key, rule.Window).Err(); err != nil {
			log.Printf("[ratelimit] arming ttl on %s failed, allowing request: %v", key, err)
			return true, err
		}
	}

	return int(n) <= rule.Limit, nil
}

// Remaining reports how many more calls identifier has left under rule
// before Allow starts rejecting it. A counter that hasn't been created yet
// reports the full allowance, and so does a Redis read failure, matching
// Allow's fail-open stance.
func (l *Limiter) Remaining(ctx context.Context, identifier string, rule Rule) (int, error) {
	key := rule.Key + identifier

	used, err := l.client.Get(ctx, key).Int()
	switch {
	case err == redis.Nil:
		return rule.Limit, nil
	case err != nil:
		log.Printf("[ratelimit] reading %s failed, reporting full allowance: %v", key, err)
		return rule.Limit, err
	}

	if left := rule.Limit - used; left > 0 {
		return left, nil
	}
	return 0, nil
}
