// Package router implements spec.md §4.5: the message router that gates
// every relayed message through ban, media, content-filter, and rate-limit
// checks before handing it to the transport, plus command dispatch for the
// user-facing and admin command surfaces (spec.md §6). It is the one
// package that knows about every other internal package, the same role the
// teacher's ws.MessageDispatcher plays for its websocket connections —
// here generalized from map-of-handlers-by-type to an explicit switch over
// the pre-classified transport.Update tagged union (spec.md §9).
package router

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/whisper/anonrelay/internal/adminflow"
	"github.com/whisper/anonrelay/internal/audit"
	"github.com/whisper/anonrelay/internal/events"
	"github.com/whisper/anonrelay/internal/matching"
	"github.com/whisper/anonrelay/internal/metrics"
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

// Router wires every domain package into the single entry point the
// transport adapter calls for each inbound update. None of its fields are
// process-global: every piece of session truth it touches lives in the
// store, so any number of Router instances (one per bot process) can run
// against the same Redis/Postgres without coordinating directly.
type Router struct {
	db        *store.Adapter
	transport transport.Transport
	bans      *moderation.Store
	filter    *moderation.Filter
	limiter   *ratelimit.Limiter
	state     *userstate.Store
	q         *queue.Queue
	pairing   *pairing.Manager
	matching  *matching.Engine
	profiles  *profile.Reader
	ratings   *rating.Store
	flows     *adminflow.Store
	audit     *audit.Store // optional: nil disables durable audit rows
	bus       *events.Bus  // optional: nil disables the NATS audit stream
	isAdmin   func(userID string) bool
	pairTTL   time.Duration
}

// Deps bundles every collaborator Router needs. Audit and Bus may be nil.
type Deps struct {
	DB        *store.Adapter
	Transport transport.Transport
	Bans      *moderation.Store
	Filter    *moderation.Filter
	Limiter   *ratelimit.Limiter
	State     *userstate.Store
	Queue     *queue.Queue
	Pairing   *pairing.Manager
	Matching  *matching.Engine
	Profiles  *profile.Reader
	Ratings   *rating.Store
	Flows     *adminflow.Store
	Audit     *audit.Store
	Bus       *events.Bus
	IsAdmin   func(userID string) bool
	PairTTL   time.Duration
}

// New builds a Router from its dependencies.
func New(d Deps) *Router {
	isAdmin := d.IsAdmin
	if isAdmin == nil {
		isAdmin = func(string) bool { return false }
	}
	return &Router{
		db:        d.DB,
		transport: d.Transport,
		bans:      d.Bans,
		filter:    d.Filter,
		limiter:   d.Limiter,
		state:     d.State,
		q:         d.Queue,
		pairing:   d.Pairing,
		matching:  d.Matching,
		profiles:  d.Profiles,
		ratings:   d.Ratings,
		flows:     d.Flows,
		audit:     d.Audit,
		bus:       d.Bus,
		isAdmin:   isAdmin,
		pairTTL:   d.PairTTL,
	}
}

// Dispatch is the single entry point the transport layer calls for every
// classified inbound update. Ban gating happens here, once, ahead of
// command dispatch and message relay alike — spec.md §4.5 step 1 for
// messages, and "every command also performs ban check first" for
// commands.
func (r *Router) Dispatch(ctx context.Context, u transport.Update) {
	ban, banned, err := r.bans.CheckBan(ctx, u.UserID)
	if err != nil {
		r.serviceUnavailable(ctx, u.UserID)
		return
	}
	if banned {
		r.sendText(ctx, u.UserID, banNotice(ban))
		return
	}

	switch {
	case u.Command != nil:
		r.handleCommand(ctx, u)
	case u.Message != nil:
		r.handleMessage(ctx, u)
	case u.Callback != nil:
		r.handleCallback(ctx, u)
	}
}

// handleMessage implements spec.md §4.5 steps 2–7 for one relayed message.
// An admin with an in-progress multi-step flow (internal/adminflow) has
// their plain-text replies consumed as flow input instead of relayed, so
// typing a target user id or a ban reason never accidentally goes out as a
// chat message.
func (r *Router) handleMessage(ctx context.Context, u transport.Update) {
	userID := u.UserID
	m := u.Message

	if r.isAdmin(userID) {
		if st, ok, err := r.flows.Get(ctx, userID); err == nil && ok {
			r.continueAdminFlow(ctx, userID, st, strings.TrimSpace(m.Text))
			return
		}
	}

	if m.HasMedia {
		blocked, err := r.bans.MediaBlocked(ctx, m.MediaType)
		if err != nil {
			r.serviceUnavailable(ctx, userID)
			return
		}
		if blocked {
			r.sendText(ctx, userID, "That type of content isn't allowed here.")
			return
		}
	}

	if m.Text != "" && r.filter != nil {
		if res := r.filter.Check(m.Text); res.Blocked {
			r.sendText(ctx, userID, "Your message was blocked by the content filter.")
			metrics.MessagesRelayedTotal.WithLabelValues("blocked").Inc()
			return
		}
	}

	allowed, err := r.limiter.Allow(ctx, userID, ratelimit.RuleMessage)
	if err != nil {
		log.Printf("[router] rate limit check for %s: %v", userID, err)
	}
	if !allowed {
		r.sendText(ctx, userID, "You're sending messages too fast — take a breath and try again in a few seconds.")
		metrics.MessagesRelayedTotal.WithLabelValues("rate_limited").Inc()
		return
	}

	partner, err := r.pairing.Partner(ctx, userID)
	if err != nil {
		r.serviceUnavailable(ctx, userID)
		return
	}
	if partner == "" {
		r.sendText(ctx, userID, "You're not in a chat right now. Send /chat to find a partner.")
		return
	}

	if err := r.state.TouchActivity(ctx, userID); err != nil {
		log.Printf("[router] touch activity for %s: %v", userID, err)
	}

	start := time.Now()
	relayErr := r.transport.Relay(ctx, u.ChatID, m.MessageID, partner)
	if relayErr != nil && errors.Is(relayErr, transport.ErrTransient) {
		// Failure semantics, spec.md §4.5: retry once per message on a
		// transient error before treating it as unreachable.
		relayErr = r.transport.Relay(ctx, u.ChatID, m.MessageID, partner)
	}
	if relayErr != nil {
		metrics.MessagesRelayedTotal.WithLabelValues("failed").Inc()
		if errors.Is(relayErr, transport.ErrUnreachable) {
			if _, err := r.pairing.End(ctx, userID, pairing.EndUnreachable); err != nil {
				log.Printf("[router] end unreachable pair for %s: %v", userID, err)
			}
			if err := r.state.SetIdle(ctx, userID); err != nil {
				log.Printf("[router] reset state for %s: %v", userID, err)
			}
			r.sendText(ctx, userID, "Your partner can no longer be reached. The chat has ended.")
			return
		}
		log.Printf("[router] relay %s -> %s: %v", userID, partner, relayErr)
		return
	}

	metrics.RelayLatency.Observe(time.Since(start).Seconds())
	metrics.MessagesRelayedTotal.WithLabelValues("delivered").Inc()
}

// handleCallback answers inline-keyboard presses: thumbs-up/down feedback
// on a just-ended chat ("rate:" payloads) is the only kind handled. Other
// payloads are acknowledged silently so the client's loading spinner
// clears either way.
func (r *Router) handleCallback(ctx context.Context, u transport.Update) {
	cb := u.Callback
	defer func() {
		if err := r.transport.AnswerCallback(ctx, cb.CallbackID, ""); err != nil {
			log.Printf("[router] answer callback %s: %v", cb.CallbackID, err)
		}
	}()

	const ratePrefix = "rate:"
	if !strings.HasPrefix(cb.Data, ratePrefix) {
		return
	}
	r.handleFeedbackCallback(ctx, u.UserID, strings.TrimPrefix(cb.Data, ratePrefix))
}

func (r *Router) handleFeedbackCallback(ctx context.Context, userID, verdict string) {
	rated, err := r.ratings.Pending(ctx, userID)
	if err != nil || rated == "" {
		return
	}
	if verdict != "up" && verdict != "down" {
		return
	}
	if _, err := r.ratings.Submit(ctx, userID, rated, verdict == "up"); err != nil {
		log.Printf("[router] submit feedback %s -> %s: %v", userID, rated, err)
		return
	}
	r.sendText(ctx, userID, "Thanks for the feedback.")
}

func (r *Router) sendText(ctx context.Context, userID, text string) {
	if err := r.transport.SendText(ctx, userID, text, nil); err != nil {
		log.Printf("[router] send to %s: %v", userID, err)
	}
}

func (r *Router) serviceUnavailable(ctx context.Context, userID string) {
	log.Printf("[router] store unavailable for %s", userID)
	r.sendText(ctx, userID, "Service is temporarily unavailable. Please try again shortly.")
}

func banNotice(b moderation.Ban) string {
	if b.IsPermanent {
		return "You are permanently banned: " + b.Reason
	}
	remaining := b.Remaining(time.Now())
	return "You are temporarily banned (" + b.Reason + "), " + remaining.Round(time.Minute).String() + " remaining."
}
