package router

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/whisper/anonrelay/internal/adminflow"
	"github.com/whisper/anonrelay/internal/audit"
	"github.com/whisper/anonrelay/internal/metrics"
	"github.com/whisper/anonrelay/internal/moderation"
	"github.com/whisper/anonrelay/internal/pairing"
	"github.com/whisper/anonrelay/internal/rating"
	"github.com/whisper/anonrelay/internal/userstate"
)

// dispatchAdminCommand handles the admin-only command surface (spec.md
// §6). It returns false for anything it doesn't recognize so the caller
// falls through to the regular user command set — an admin typing /chat
// should still get matched like anyone else.
//
// /ban, /warn, and /forcematch take two or three arguments; when given
// inline (e.g. "/ban alice spam 24h") they execute immediately. When
// called bare, they start an internal/adminflow conversation and the
// admin's next plain-text replies supply the missing pieces — the
// FSM spec.md §9 calls for instead of an in-process map of pending admin
// sessions, which would not survive a second bot process picking up the
// admin's next message.
func (r *Router) dispatchAdminCommand(ctx context.Context, adminID, name, args string) bool {
	switch name {
	case "ban":
		r.adminBan(ctx, adminID, args)
	case "unban":
		r.adminUnban(ctx, adminID, args)
	case "warn":
		r.adminWarn(ctx, adminID, args)
	case "checkban":
		r.adminCheckBan(ctx, adminID, args)
	case "bannedlist":
		r.adminBannedList(ctx, adminID)
	case "warninglist":
		r.adminWarningList(ctx, adminID)
	case "forcematch":
		r.adminForceMatch(ctx, adminID, args)
	case "enablegender":
		r.setToggle(ctx, adminID, true, r.bans.SetGenderFilterEnabled, "Gender filter enabled.")
	case "disablegender":
		r.setToggle(ctx, adminID, false, r.bans.SetGenderFilterEnabled, "Gender filter disabled.")
	case "enableregional":
		r.setToggle(ctx, adminID, true, r.bans.SetRegionalFilterEnabled, "Regional filter enabled.")
	case "disableregional":
		r.setToggle(ctx, adminID, false, r.bans.SetRegionalFilterEnabled, "Regional filter disabled.")
	case "matchstatus":
		r.adminMatchStatus(ctx, adminID)
	default:
		return false
	}
	return true
}

func (r *Router) setToggle(ctx context.Context, adminID string, enabled bool, set func(context.Context, bool) error, confirmation string) {
	if err := set(ctx, enabled); err != nil {
		r.serviceUnavailable(ctx, adminID)
		return
	}
	r.sendText(ctx, adminID, confirmation)
}

func (r *Router) adminMatchStatus(ctx context.Context, adminID string) {
	n, err := r.q.Len(ctx)
	if err != nil {
		r.serviceUnavailable(ctx, adminID)
		return
	}
	pairKeys, err := r.db.Client().Keys(ctx, "pair:*").Result()
	if err != nil {
		r.serviceUnavailable(ctx, adminID)
		return
	}
	ownState, err := r.state.Get(ctx, adminID)
	if err != nil {
		r.serviceUnavailable(ctx, adminID)
		return
	}
	genderOn, _ := r.bans.GenderFilterEnabled(ctx)
	regionalOn, _ := r.bans.RegionalFilterEnabled(ctx)
	r.sendText(ctx, adminID, fmt.Sprintf(
		"Queue: %d waiting. Active pairs: %d. Your state: %s. Gender filter: %v. Regional filter: %v.",
		n, len(pairKeys)/2, ownState, genderOn, regionalOn))
}

func (r *Router) adminBan(ctx context.Context, adminID, args string) {
	fields := strings.Fields(args)
	if len(fields) < 3 {
		if err := r.flows.Start(ctx, adminID, "ban", adminflow.StepTarget); err != nil {
			r.serviceUnavailable(ctx, adminID)
			return
		}
		r.sendText(ctx, adminID, "Who do you want to ban? Send their user id.")
		return
	}
	target, reason, durationArg := fields[0], fields[1], fields[2]
	r.executeBan(ctx, adminID, target, reason, durationArg)
}

func (r *Router) executeBan(ctx context.Context, adminID, target, reason, durationArg string) {
	duration, permanent := parseBanDuration(durationArg)
	if !permanent && duration == 0 {
		r.sendText(ctx, adminID, "Couldn't parse the duration. Use something like 24h, 7d, or \"permanent\".")
		return
	}
	if err := r.bans.Ban(ctx, target, reason, adminID, duration, false); err != nil {
		r.serviceUnavailable(ctx, adminID)
		return
	}
	metrics.BansTotal.WithLabelValues(reason, "false").Inc()
	r.recordAudit(ctx, "ban", adminID, target, reason, nil)
	r.publishBan(target, adminID, reason, false)

	if st, err := r.state.Get(ctx, target); err == nil && st == userstate.InChat {
		r.endChat(ctx, target, pairing.EndBanned, "You have been banned.", "Your chat partner was banned and the session ended.")
	}
	r.sendText(ctx, adminID, "Banned "+target+".")
}

func (r *Router) adminUnban(ctx context.Context, adminID, args string) {
	target := strings.Fields(args)
	if len(target) == 0 {
		r.sendText(ctx, adminID, "Usage: /unban <user_id>")
		return
	}
	r.executeUnban(ctx, adminID, target[0])
}

func (r *Router) executeUnban(ctx context.Context, adminID, target string) {
	if target == "" {
		r.sendText(ctx, adminID, "Usage: /unban <user_id>")
		return
	}
	err := r.bans.Unban(ctx, target)
	if err == moderation.ErrNotBanned {
		r.sendText(ctx, adminID, target+" is not currently banned.")
		return
	}
	if err != nil {
		r.serviceUnavailable(ctx, adminID)
		return
	}
	r.recordAudit(ctx, "unban", adminID, target, "", nil)
	r.publishBan(target, adminID, "", true)
	r.sendText(ctx, adminID, "Unbanned "+target+".")
}

func (r *Router) adminWarn(ctx context.Context, adminID, args string) {
	fields := strings.SplitN(args, " ", 2)
	if len(fields) < 2 || fields[0] == "" || strings.TrimSpace(fields[1]) == "" {
		if err := r.flows.Start(ctx, adminID, "warn", adminflow.StepTarget); err != nil {
			r.serviceUnavailable(ctx, adminID)
			return
		}
		r.sendText(ctx, adminID, "Who do you want to warn? Send their user id.")
		return
	}
	r.executeWarn(ctx, adminID, fields[0], strings.TrimSpace(fields[1]))
}

func (r *Router) executeWarn(ctx context.Context, adminID, target, reason string) {
	if err := r.bans.Warn(ctx, target, reason, adminID); err != nil {
		r.serviceUnavailable(ctx, adminID)
		return
	}
	r.recordAudit(ctx, "warn", adminID, target, reason, nil)
	if r.bus != nil {
		r.bus.PublishWarning(target, adminID, reason)
	}
	r.sendText(ctx, adminID, "Warned "+target+".")
}

func (r *Router) adminCheckBan(ctx context.Context, adminID, args string) {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		r.sendText(ctx, adminID, "Usage: /checkban <user_id>")
		return
	}
	target := fields[0]
	ban, ok, err := r.bans.CheckBan(ctx, target)
	if err != nil {
		r.serviceUnavailable(ctx, adminID)
		return
	}
	if !ok {
		r.sendText(ctx, adminID, target+" has no active ban.")
		return
	}
	r.sendText(ctx, adminID, fmt.Sprintf("%s: %s", target, banNotice(ban)))
}

func (r *Router) adminBannedList(ctx context.Context, adminID string) {
	ids, err := r.bans.ListBanned(ctx)
	if err != nil {
		r.serviceUnavailable(ctx, adminID)
		return
	}
	if len(ids) == 0 {
		r.sendText(ctx, adminID, "No users are currently banned.")
		return
	}
	r.sendText(ctx, adminID, "Banned users: "+strings.Join(ids, ", "))
}

func (r *Router) adminWarningList(ctx context.Context, adminID string) {
	ids, err := r.bans.ListWarned(ctx)
	if err != nil {
		r.serviceUnavailable(ctx, adminID)
		return
	}
	if len(ids) == 0 {
		r.sendText(ctx, adminID, "No users have warnings on record.")
		return
	}
	r.sendText(ctx, adminID, "Warned users: "+strings.Join(ids, ", "))
}

// adminForceMatch implements spec.md §4.4's force-match flow: both users
// must differ and neither may currently be IN_CHAT. Ban status is checked
// too, as the documented courtesy behavior spec.md allows an implementer
// to choose.
func (r *Router) adminForceMatch(ctx context.Context, adminID, args string) {
	fields := strings.Fields(args)
	if len(fields) < 2 {
		if err := r.flows.Start(ctx, adminID, "forcematch", adminflow.StepTarget); err != nil {
			r.serviceUnavailable(ctx, adminID)
			return
		}
		r.sendText(ctx, adminID, "Force-match: send the first user id.")
		return
	}
	r.executeForceMatch(ctx, adminID, fields[0], fields[1])
}

func (r *Router) executeForceMatch(ctx context.Context, adminID, a, b string) {
	if a == b {
		r.sendText(ctx, adminID, "Can't force-match a user with themselves.")
		return
	}
	for _, uid := range []string{a, b} {
		banned, err := r.bans.IsBanned(ctx, uid)
		if err != nil {
			r.serviceUnavailable(ctx, adminID)
			return
		}
		if banned {
			r.sendText(ctx, adminID, uid+" is banned and cannot be force-matched.")
			return
		}
		st, err := r.state.Get(ctx, uid)
		if err != nil {
			r.serviceUnavailable(ctx, adminID)
			return
		}
		if st == userstate.InChat {
			r.sendText(ctx, adminID, "Force-match rejected: "+uid+" is already in a chat.")
			return
		}
	}

	if err := r.q.Remove(ctx, a); err != nil {
		log.Printf("[router] force-match dequeue %s: %v", a, err)
	}
	if err := r.q.Remove(ctx, b); err != nil {
		log.Printf("[router] force-match dequeue %s: %v", b, err)
	}

	if err := r.db.ForcePair(ctx, a, b, int(r.pairTTL.Seconds())); err != nil {
		r.serviceUnavailable(ctx, adminID)
		return
	}

	if err := r.pairing.Announce(ctx, a, b); err != nil {
		log.Printf("[router] announce force-matched pair %s<->%s: %v", a, b, err)
	}
	metrics.ActivePairs.Inc()
	r.sendText(ctx, a, "An admin has connected you with someone for a special match. Say hi!")
	r.sendText(ctx, b, "An admin has connected you with someone for a special match. Say hi!")
	r.sendText(ctx, adminID, "Force-matched "+a+" and "+b+".")
}

// continueAdminFlow feeds one plain-text reply into an in-progress admin
// FSM (internal/adminflow) and either advances to the next prompt or, once
// every field is collected, executes the action and clears the flow.
func (r *Router) continueAdminFlow(ctx context.Context, adminID string, st adminflow.State, text string) {
	switch st.Command {
	case "ban":
		r.continueBanFlow(ctx, adminID, st, text)
	case "warn":
		r.continueWarnFlow(ctx, adminID, st, text)
	case "forcematch":
		r.continueForceMatchFlow(ctx, adminID, st, text)
	default:
		r.flows.Clear(ctx, adminID)
	}
}

func (r *Router) continueBanFlow(ctx context.Context, adminID string, st adminflow.State, text string) {
	switch st.Step {
	case adminflow.StepTarget:
		if err := r.flows.SetTarget(ctx, adminID, text, adminflow.StepReason); err != nil {
			r.serviceUnavailable(ctx, adminID)
			return
		}
		r.sendText(ctx, adminID, "Reason for the ban?")
	case adminflow.StepReason:
		if err := r.flows.SetReason(ctx, adminID, text, adminflow.StepDuration); err != nil {
			r.serviceUnavailable(ctx, adminID)
			return
		}
		r.sendText(ctx, adminID, "Duration (e.g. 24h, 7d, or \"permanent\")?")
	case adminflow.StepDuration:
		if err := r.flows.SetDuration(ctx, adminID, text, adminflow.StepConfirm); err != nil {
			r.serviceUnavailable(ctx, adminID)
			return
		}
		final, _, err := r.flows.Get(ctx, adminID)
		if err != nil {
			r.serviceUnavailable(ctx, adminID)
			return
		}
		r.flows.Clear(ctx, adminID)
		r.executeBan(ctx, adminID, final.Target, final.Reason, text)
	default:
		r.flows.Clear(ctx, adminID)
	}
}

func (r *Router) continueWarnFlow(ctx context.Context, adminID string, st adminflow.State, text string) {
	switch st.Step {
	case adminflow.StepTarget:
		if err := r.flows.SetTarget(ctx, adminID, text, adminflow.StepReason); err != nil {
			r.serviceUnavailable(ctx, adminID)
			return
		}
		r.sendText(ctx, adminID, "Reason for the warning?")
	case adminflow.StepReason:
		r.flows.Clear(ctx, adminID)
		r.executeWarn(ctx, adminID, st.Target, text)
	default:
		r.flows.Clear(ctx, adminID)
	}
}

func (r *Router) continueForceMatchFlow(ctx context.Context, adminID string, st adminflow.State, text string) {
	switch st.Step {
	case adminflow.StepTarget:
		if err := r.flows.SetTarget(ctx, adminID, text, adminflow.StepReason); err != nil {
			r.serviceUnavailable(ctx, adminID)
			return
		}
		r.sendText(ctx, adminID, "Force-match: send the second user id.")
	case adminflow.StepReason:
		first := st.Target
		r.flows.Clear(ctx, adminID)
		r.executeForceMatch(ctx, adminID, first, text)
	default:
		r.flows.Clear(ctx, adminID)
	}
}

// recordAudit writes a durable moderation row when an audit store is
// configured. It is a best-effort side channel: Redis remains the source
// of truth for enforcement, so a Postgres outage never blocks a ban.
func (r *Router) recordAudit(ctx context.Context, action, actor, target, reason string, metadata map[string]string) {
	if r.audit == nil {
		return
	}
	if err := r.audit.Create(ctx, audit.Event{Action: action, Actor: actor, Target: target, Reason: reason, Metadata: metadata}); err != nil {
		log.Printf("[router] audit log %s %s->%s: %v", action, actor, target, err)
	}
}

func (r *Router) publishBan(target, by, reason string, lifted bool) {
	if r.bus == nil {
		return
	}
	r.bus.PublishBan(target, by, reason, lifted)
}

func (r *Router) publishReport(target, reportedBy string) {
	if r.bus == nil {
		return
	}
	r.bus.PublishReport(target, reportedBy)
}

func parseBanDuration(s string) (time.Duration, bool) {
	if strings.EqualFold(s, "permanent") || s == "0" {
		return 0, true
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d, false
	}
	if days, err := strconv.Atoi(strings.TrimSuffix(s, "d")); err == nil && strings.HasSuffix(s, "d") {
		return time.Duration(days) * 24 * time.Hour, false
	}
	return 0, false
}

func ratingSummary(r rating.Record) string {
	return fmt.Sprintf("Score: %.0f%% (%d positive, %d negative, %d chats).", r.Score(), r.Positive, r.Negative, r.TotalChats)
}
