package store

import (
	"context"
	"fmt"
)

// joinOrMatchLua implements join_or_match from the design: given a
// caller-supplied ordered candidate list (already filtered for
// compatibility and sorted by priority outside the script), pop the first
// candidate still present in the waiting queue, pair it with the caller,
// and flip both states to in_chat. If no candidate survives, push the
// caller onto the queue tail and mark them in_queue.
//
// KEYS[1] = queue key (list)
// KEYS[2] = caller's state key
// KEYS[3] = caller's pair key
// ARGV[1] = caller id
// ARGV[2] = pair TTL seconds
// ARGV[3..] = candidate ids, priority-ordered
//
// Returns the partner id on match, or the empty string if the caller was
// queued instead.
const joinOrMatchLua = `
local queue_key = KEYS[1]
local my_state_key = KEYS[2]
local my_pair_key = KEYS[3]
local my_id = ARGV[1]
local ttl = tonumber(ARGV[2])

for i = 3, #ARGV do
    local candidate = ARGV[i]
    local removed = redis.call('LREM', queue_key, 1, candidate)
    if removed == 1 then
        local candidate_state_key = 'state:' .. candidate
        local candidate_pair_key = 'pair:' .. candidate

        redis.call('SET', my_pair_key, candidate, 'EX', ttl)
        redis.call('SET', candidate_pair_key, my_id, 'EX', ttl)
        redis.call('SET', my_state_key, 'IN_CHAT', 'EX', ttl)
        redis.call('SET', candidate_state_key, 'IN_CHAT', 'EX', ttl)

        return candidate
    end
end

redis.call('RPUSH', queue_key, my_id)
redis.call('SET', my_state_key, 'IN_QUEUE', 'EX', ttl)
return ''
`

// breakPairLua implements break_pair: if pair[a]=b and pair[b]=a, delete
// both pair keys and set both states to idle, atomically. Returns 1 on a
// successful break, 0 if the pair did not exist as claimed.
//
// KEYS[1] = a's pair key
// KEYS[2] = b's pair key
// KEYS[3] = a's state key
// KEYS[4] = b's state key
// ARGV[1] = a id
// ARGV[2] = b id
const breakPairLua = `
local a_pair_key = KEYS[1]
local b_pair_key = KEYS[2]
local a_state_key = KEYS[3]
local b_state_key = KEYS[4]
local a_id = ARGV[1]
local b_id = ARGV[2]

local a_partner = redis.call('GET', a_pair_key)
local b_partner = redis.call('GET', b_pair_key)

if a_partner == b_id and b_partner == a_id then
    redis.call('DEL', a_pair_key)
    redis.call('DEL', b_pair_key)
    redis.call('SET', a_state_key, 'IDLE')
    redis.call('SET', b_state_key, 'IDLE')
    return 1
end

return 0
`

// forcePairLua implements the admin force-match flow (spec.md §4.4):
// atomically pair two users who are both confirmed (by the caller, outside
// the script) to not already be IN_CHAT, bypassing the queue and
// compatibility logic entirely. Unlike join_or_match it does not consult
// the waiting queue at all — an admin force-match pulls both users
// directly regardless of whether either was ever queued.
//
// KEYS[1..4] = a's pair key, b's pair key, a's state key, b's state key
// ARGV[1] = a id, ARGV[2] = b id, ARGV[3] = TTL seconds
const forcePairLua = `
local a_pair_key = KEYS[1]
local b_pair_key = KEYS[2]
local a_state_key = KEYS[3]
local b_state_key = KEYS[4]
local a_id = ARGV[1]
local b_id = ARGV[2]
local ttl = tonumber(ARGV[3])

redis.call('SET', a_pair_key, b_id, 'EX', ttl)
redis.call('SET', b_pair_key, a_id, 'EX', ttl)
redis.call('SET', a_state_key, 'IN_CHAT', 'EX', ttl)
redis.call('SET', b_state_key, 'IN_CHAT', 'EX', ttl)
return 1
`

// ForcePair unconditionally pairs a and b, per the admin force-match flow.
// Callers must verify neither user is already IN_CHAT before calling this;
// the script itself performs no such check since that decision depends on
// ban status too, which belongs outside the store layer.
func (a *Adapter) ForcePair(ctx context.Context, aID, bID string, pairTTLSeconds int) error {
	keys := []string{"pair:" + aID, "pair:" + bID, "state:" + aID, "state:" + bID}
	_, err := a.forcePair.Run(ctx, a.rdb, keys, aID, bID, fmt.Sprintf("%d", pairTTLSeconds)).Result()
	return wrap(err)
}

// JoinOrMatch runs the join_or_match script. candidates must already be
// filtered for compatibility and ordered by priority (highest first); the
// script guarantees only that the winning candidate was still queued at
// decision time, not that it is still compatible (compatibility is a
// point-in-time judgment made by the caller).
func (a *Adapter) JoinOrMatch(ctx context.Context, queueKey, myID string, pairTTLSeconds int, candidates []string) (string, error) {
	keys := []string{queueKey, "state:" + myID, "pair:" + myID}
	args := make([]interface{}, 0, len(candidates)+2)
	args = append(args, myID, fmt.Sprintf("%d", pairTTLSeconds))
	for _, c := range candidates {
		args = append(args, c)
	}

	res, err := a.joinOrMatch.Run(ctx, a.rdb, keys, args...).Text()
	if err != nil {
		return "", wrap(err)
	}
	return res, nil
}

// BreakPair runs the break_pair script. Returns true if the pair existed
// and was broken.
func (a *Adapter) BreakPair(ctx context.Context, aID, bID string) (bool, error) {
	keys := []string{"pair:" + aID, "pair:" + bID, "state:" + aID, "state:" + bID}
	res, err := a.breakPair.Run(ctx, a.rdb, keys, aID, bID).Int()
	if err != nil {
		return false, wrap(err)
	}
	return res == 1, nil
}
