package router

import (
	"context"
	"log"
	"strings"

	"github.com/whisper/anonrelay/internal/matching"
	"github.com/whisper/anonrelay/internal/metrics"
	"github.com/whisper/anonrelay/internal/moderation"
	"github.com/whisper/anonrelay/internal/pairing"
	"github.com/whisper/anonrelay/internal/profile"
	"github.com/whisper/anonrelay/internal/ratelimit"
	"github.com/whisper/anonrelay/internal/transport"
	"github.com/whisper/anonrelay/internal/userstate"
)

const helpText = `Commands:
/chat - find a chat partner
/stop - end the current chat or leave the queue
/next - end the current chat and find a new partner
/report [user_id] - report your current or named partner
/profile - view your profile
/preferences - view your matching preferences
/rating - view your rating score
/help - show this message`

var feedbackKeyboard = transport.Keyboard{
	{{Label: "👍", Data: "rate:up"}, {Label: "👎", Data: "rate:down"}},
}

// handleCommand dispatches a parsed slash command. Admins get first look at
// every command so an in-progress /ban flow or a one-shot /unban can be
// recognized before falling through to the regular user command set (an
// admin is still a user and can still /chat).
func (r *Router) handleCommand(ctx context.Context, u transport.Update) {
	name := strings.ToLower(u.Command.Name)
	userID := u.UserID
	args := strings.TrimSpace(u.Command.Args)

	if r.isAdmin(userID) && r.dispatchAdminCommand(ctx, userID, name, args) {
		return
	}

	switch name {
	case "start":
		r.cmdStart(ctx, userID)
	case "chat":
		r.cmdChat(ctx, userID)
	case "stop":
		r.cmdStop(ctx, userID)
	case "next":
		r.cmdNext(ctx, userID)
	case "help":
		r.sendText(ctx, userID, helpText)
	case "report":
		r.cmdReport(ctx, userID, args)
	case "profile":
		r.cmdProfile(ctx, userID)
	case "preferences":
		r.cmdPreferences(ctx, userID)
	case "rating":
		r.cmdRating(ctx, userID)
	default:
		r.sendText(ctx, userID, "Unknown command. Send /help to see what I can do.")
	}
}

func (r *Router) cmdStart(ctx context.Context, userID string) {
	r.sendText(ctx, userID, "Welcome. Send /chat whenever you want to talk to someone new — everything here stays anonymous.")
}

// cmdChat implements spec.md §4.3's entry point: a user already in a chat
// or queue is told so and left untouched (ConflictState, spec.md §7), then
// the matching engine either pairs them immediately or queues them.
func (r *Router) cmdChat(ctx context.Context, userID string) {
	st, err := r.state.Get(ctx, userID)
	if err != nil {
		r.serviceUnavailable(ctx, userID)
		return
	}
	switch st {
	case userstate.InChat:
		r.sendText(ctx, userID, "You're already in a chat. Send /next to switch partners or /stop to leave.")
		return
	case userstate.InQueue:
		r.sendText(ctx, userID, "You're already in the queue — hang tight.")
		return
	}

	allowed, err := r.limiter.Allow(ctx, userID, ratelimit.RuleChat)
	if err != nil {
		log.Printf("[router] rate limit /chat for %s: %v", userID, err)
	}
	if !allowed {
		r.sendText(ctx, userID, "You're using /chat too often. Wait a bit before trying again.")
		return
	}

	result, err := r.matching.FindPartner(ctx, userID)
	if err != nil {
		r.serviceUnavailable(ctx, userID)
		return
	}

	switch result.Outcome {
	case matching.Rejected:
		r.sendText(ctx, userID, "You can't start new chats right now.")
	case matching.QueueFull:
		r.sendText(ctx, userID, "The waiting queue is full right now. Try /chat again in a bit.")
	case matching.Queued:
		n, err := r.q.Len(ctx)
		if err != nil {
			n = 0
		}
		r.sendText(ctx, userID, "Looking for a partner... you're in the queue.")
		metrics.QueueSize.Set(float64(n))
	case matching.Matched:
		r.announceMatch(ctx, userID, result.PartnerID)
	}
}

func (r *Router) announceMatch(ctx context.Context, a, b string) {
	if err := r.pairing.Announce(ctx, a, b); err != nil {
		log.Printf("[router] announce pair %s<->%s: %v", a, b, err)
	}
	metrics.ActivePairs.Inc()
	r.introduce(ctx, a, b)
	r.introduce(ctx, b, a)
}

// introduce sends userID a card describing partnerID — nickname, gender,
// country only, never partnerID itself (spec.md §4.4's anonymity rule).
func (r *Router) introduce(ctx context.Context, userID, partnerID string) {
	p, err := r.profiles.Get(ctx, partnerID)
	if err != nil {
		r.sendText(ctx, userID, "You're connected with someone new. Say hi!")
		return
	}
	r.sendText(ctx, userID, "You're connected with "+profileCard(p)+". Say hi!")
}

func profileCard(p profile.Profile) string {
	nick := p.Nickname
	if nick == "" {
		nick = "a stranger"
	}
	var parts []string
	if p.Gender != "" {
		parts = append(parts, p.Gender)
	}
	if p.Country != "" {
		parts = append(parts, p.Country)
	}
	if len(parts) == 0 {
		return nick
	}
	return nick + " (" + strings.Join(parts, ", ") + ")"
}

func (r *Router) cmdStop(ctx context.Context, userID string) {
	st, err := r.state.Get(ctx, userID)
	if err != nil {
		r.serviceUnavailable(ctx, userID)
		return
	}
	switch st {
	case userstate.InQueue:
		if err := r.matching.Leave(ctx, userID); err != nil {
			r.serviceUnavailable(ctx, userID)
			return
		}
		if err := r.state.SetIdle(ctx, userID); err != nil {
			log.Printf("[router] reset state for %s: %v", userID, err)
		}
		r.sendText(ctx, userID, "You've left the queue.")
	case userstate.InChat:
		r.endChat(ctx, userID, pairing.EndUserLeft, "You ended the chat.", "Your partner left the chat.")
	default:
		r.sendText(ctx, userID, "You're not in a chat or queue.")
	}
}

// endChat breaks userID's pair, resets both sides to Idle, and sends each
// their ending notice plus a feedback prompt (spec.md §4.4, §4.6).
func (r *Router) endChat(ctx context.Context, userID string, reason pairing.EndReason, selfText, partnerText string) {
	partner, err := r.pairing.End(ctx, userID, reason)
	if err != nil {
		r.serviceUnavailable(ctx, userID)
		return
	}
	if partner == "" {
		r.sendText(ctx, userID, "You're not in a chat.")
		return
	}
	metrics.ActivePairs.Dec()
	if err := r.state.SetIdle(ctx, userID); err != nil {
		log.Printf("[router] reset state for %s: %v", userID, err)
	}
	if err := r.state.SetIdle(ctx, partner); err != nil {
		log.Printf("[router] reset state for %s: %v", partner, err)
	}
	if err := r.transport.SendText(ctx, userID, selfText+" You can rate your chat partner below.", feedbackKeyboard); err != nil {
		log.Printf("[router] send end notice to %s: %v", userID, err)
	}
	if err := r.transport.SendText(ctx, partner, partnerText+" You can rate your chat partner below.", feedbackKeyboard); err != nil {
		log.Printf("[router] send end notice to %s: %v", partner, err)
	}
}

func (r *Router) cmdNext(ctx context.Context, userID string) {
	st, err := r.state.Get(ctx, userID)
	if err != nil {
		r.serviceUnavailable(ctx, userID)
		return
	}
	if st != userstate.InChat {
		r.sendText(ctx, userID, "You're not in a chat. Send /chat to find a partner.")
		return
	}

	allowed, err := r.limiter.Allow(ctx, userID, ratelimit.RuleNext)
	if err != nil {
		log.Printf("[router] rate limit /next for %s: %v", userID, err)
	}
	if !allowed {
		r.sendText(ctx, userID, "You're switching partners too often. Wait a bit before trying /next again.")
		return
	}

	r.endChat(ctx, userID, pairing.EndNext, "You left the chat.", "Your partner left to talk to someone else.")
	r.cmdChat(ctx, userID)
}

// cmdReport implements spec.md §4.7's RecordReport path: the target is
// either named explicitly in args or defaults to the caller's current
// partner. Reporting triggers an auto-ban at the threshold, which in turn
// breaks any chat the target is currently in.
func (r *Router) cmdReport(ctx context.Context, userID, args string) {
	allowed, err := r.limiter.Allow(ctx, userID, ratelimit.RuleReport)
	if err != nil {
		log.Printf("[router] rate limit /report for %s: %v", userID, err)
	}
	if !allowed {
		r.sendText(ctx, userID, "You've filed too many reports recently. Try again later.")
		return
	}

	target := args
	if target == "" {
		partner, err := r.pairing.Partner(ctx, userID)
		if err != nil {
			r.serviceUnavailable(ctx, userID)
			return
		}
		if partner == "" {
			r.sendText(ctx, userID, "You're not in a chat, and no user id was given to report.")
			return
		}
		target = partner
	}

	autoBanned, err := r.bans.RecordReport(ctx, target, userID)
	if err != nil {
		r.serviceUnavailable(ctx, userID)
		return
	}
	metrics.ReportsTotal.Inc()
	r.recordAudit(ctx, "report", userID, target, "", nil)
	r.publishReport(target, userID)

	if autoBanned {
		metrics.BansTotal.WithLabelValues(moderation.ReasonAbuse, "true").Inc()
		r.recordAudit(ctx, "autoban", "system", target, moderation.ReasonAbuse, nil)
		r.publishBan(target, "system", moderation.ReasonAbuse, false)
		if partner, err := r.pairing.Partner(ctx, target); err == nil && partner != "" {
			r.endChat(ctx, target, pairing.EndBanned, "You have been banned for abuse.", "Your chat partner was banned and the session ended.")
		}
	}
	r.sendText(ctx, userID, "Thanks, your report has been recorded.")
}

func (r *Router) cmdProfile(ctx context.Context, userID string) {
	p, err := r.profiles.Get(ctx, userID)
	if err != nil {
		r.serviceUnavailable(ctx, userID)
		return
	}
	r.sendText(ctx, userID, "Your profile: "+profileCard(p))
}

func (r *Router) cmdPreferences(ctx context.Context, userID string) {
	prefs, err := r.profiles.Preferences(ctx, userID)
	if err != nil {
		r.serviceUnavailable(ctx, userID)
		return
	}
	r.sendText(ctx, userID, "Your preferences: looking for "+prefs.GenderFilter+" from "+prefs.CountryFilter+".")
}

func (r *Router) cmdRating(ctx context.Context, userID string) {
	rec, err := r.ratings.Get(ctx, userID)
	if err != nil {
		r.serviceUnavailable(ctx, userID)
		return
	}
	r.sendText(ctx, userID, ratingSummary(rec))
}
