// Package adminflow implements the multi-step admin command conversations
// (enter a target user id, then a reason, then a duration) as an explicit
// finite-state machine stored in Redis at adminflow:{admin_id}, per
// spec.md §9's design note: an in-process map keyed by admin ID would
// break the moment a second bot process comes up, since the admin's next
// reply could land on either one.
package adminflow

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/whisper/anonrelay/internal/store"
)

const (
	keyPrefix = "adminflow:"
	flowTTL   = 5 * time.Minute
)

// Step identifies which piece of information the flow is still waiting on.
type Step string

const (
	StepTarget   Step = "target"
	StepReason   Step = "reason"
	StepDuration Step = "duration"
	StepConfirm  Step = "confirm"
)

// ErrNoActiveFlow is returned by SetTarget, SetReason and SetDuration when
// the admin has no flow in progress (their session expired or they never
// started one).
var ErrNoActiveFlow = errors.New("adminflow: no active flow")

// State is the persisted shape of one admin's in-progress command.
type State struct {
	Command  string `json:"command"` // "ban", "warn", "forcematch", ...
	Step     Step   `json:"step"`
	Target   string `json:"target,omitempty"`
	Reason   string `json:"reason,omitempty"`
	Duration string `json:"duration,omitempty"`
}

// Store reads and writes admin conversation state.
type Store struct {
	db *store.Adapter
}

// New creates a Store backed by db.
func New(db *store.Adapter) *Store {
	return &Store{db: db}
}

// Start begins a new flow for adminID at the given first step, discarding
// any prior in-progress flow.
func (s *Store) Start(ctx context.Context, adminID, command string, first Step) error {
	return s.save(ctx, adminID, State{Command: command, Step: first})
}

// Get returns the admin's in-progress flow, if any. ok is false if no flow
// is active (never started, or expired).
func (s *Store) Get(ctx context.Context, adminID string) (State, bool, error) {
	raw, err := s.db.Get(ctx, keyPrefix+adminID)
	if err != nil {
		return State{}, false, err
	}
	if raw == "" {
		return State{}, false, nil
	}
	var st State
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return State{}, false, err
	}
	return st, true, nil
}

// SetTarget records the target user and advances to next.
func (s *Store) SetTarget(ctx context.Context, adminID, target string, next Step) error {
	return s.update(ctx, adminID, func(st *State) {
		st.Target = target
		st.Step = next
	})
}

// SetReason records the reason and advances to next.
func (s *Store) SetReason(ctx context.Context, adminID, reason string, next Step) error {
	return s.update(ctx, adminID, func(st *State) {
		st.Reason = reason
		st.Step = next
	})
}

// SetDuration records the duration and advances to next.
func (s *Store) SetDuration(ctx context.Context, adminID, duration string, next Step) error {
	return s.update(ctx, adminID, func(st *State) {
		st.Duration = duration
		st.Step = next
	})
}

// Clear discards adminID's in-progress flow, successful or abandoned.
func (s *Store) Clear(ctx context.Context, adminID string) error {
	return s.db.Del(ctx, keyPrefix+adminID)
}

func (s *Store) update(ctx context.Context, adminID string, mutate func(*State)) error {
	st, ok, err := s.Get(ctx, adminID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNoActiveFlow
	}
	mutate(&st)
	return s.save(ctx, adminID, st)
}

func (s *Store) save(ctx context.Context, adminID string, st State) error {
	data, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return s.db.Set(ctx, keyPrefix+adminID, string(data), flowTTL)
}
