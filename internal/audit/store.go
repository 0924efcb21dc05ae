// Package audit provides a durable, queryable moderation trail backed by
// PostgreSQL, supplementing Redis's counters (which expire or get
// overwritten) with an append-only record moderators can review per user
// (spec.md §4.7). Redis remains the source of truth for live state; this
// store exists purely for history and reporting.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// validActions is the set of allowed action values, matching the CHECK
// constraint on the moderation_events table (migrations/0001_init.up.sql).
var validActions = map[string]bool{
	"ban":     true,
	"unban":   true,
	"warn":    true,
	"report":  true,
	"autoban": true,
}

// Event is one row of the moderation audit trail.
type Event struct {
	ID        int64
	Action    string
	Actor     string // admin or reporter ID, or "system" for auto-bans
	Target    string
	Reason    string
	Metadata  map[string]string
	CreatedAt time.Time
}

// Store manages moderation_events rows in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a Store backed by an open pgxpool.Pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Connect opens a pgxpool.Pool for connString and returns a ready Store.
func Connect(ctx context.Context, connString string) (*Store, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("audit: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("audit: ping: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Create inserts one moderation event. Metadata is marshalled to JSONB.
func (s *Store) Create(ctx context.Context, ev Event) error {
	if !validActions[ev.Action] {
		return fmt.Errorf("audit: invalid action %q", ev.Action)
	}

	var metaJSON []byte
	if len(ev.Metadata) > 0 {
		var err error
		metaJSON, err = json.Marshal(ev.Metadata)
		if err != nil {
			return fmt.Errorf("audit: marshal metadata: %w", err)
		}
	}

	const query = `
		INSERT INTO moderation_events (action, actor, target, reason, metadata)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := s.pool.Exec(ctx, query, ev.Action, ev.Actor, ev.Target, ev.Reason, metaJSON)
	if err != nil {
		return fmt.Errorf("audit: insert: %w", err)
	}
	return nil
}

// Recent returns the most recent events recorded against target, newest
// first, capped at limit rows. No command in this repository calls it; it
// is the read side for an external admin console.
func (s *Store) Recent(ctx context.Context, target string, limit int) ([]Event, error) {
	const query = `
		SELECT id, action, actor, target, reason, metadata, created_at
		FROM moderation_events
		WHERE target = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := s.pool.Query(ctx, query, target, limit)
	if err != nil {
		return nil, fmt.Errorf("audit: query recent: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var ev Event
		var metaJSON []byte
		if err := rows.Scan(&ev.ID, &ev.Action, &ev.Actor, &ev.Target, &ev.Reason, &metaJSON, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("audit: scan: %w", err)
		}
		if len(metaJSON) > 0 {
			if err := json.Unmarshal(metaJSON, &ev.Metadata); err != nil {
				return nil, fmt.Errorf("audit: unmarshal metadata: %w", err)
			}
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: rows: %w", err)
	}
	return events, nil
}

// CountRecent returns the number of events of the given action recorded
// against target within the last window. Used to cross-check Redis's
// report counter against the durable trail during investigations.
func (s *Store) CountRecent(ctx context.Context, target, action string, window time.Duration) (int, error) {
	const query = `
		SELECT COUNT(*)
		FROM moderation_events
		WHERE target = $1 AND action = $2
		  AND created_at >= NOW() - $3::interval`

	var count int
	err := s.pool.QueryRow(ctx, query, target, action, window.String()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("audit: count recent: %w", err)
	}
	return count, nil
}
