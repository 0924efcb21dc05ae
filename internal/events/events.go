// Package events wraps a NATS connection as a cross-process audit bus for
// moderation and pairing-lifecycle state changes (spec.md §4.7's audit
// trail). Unlike the teacher's messaging package, this bus never carries
// chat content or routes deliveries between connections — the Telegram
// transport already owns per-user delivery — it only announces that
// something happened, for the audit store and admin tooling to consume.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// Subjects published on the bus. Each carries a JSON-encoded Event.
const (
	SubjectPairCreated   = "pairing.created"
	SubjectPairEnded     = "pairing.ended"
	SubjectBanIssued     = "moderation.ban"
	SubjectBanLifted     = "moderation.unban"
	SubjectWarningIssued = "moderation.warn"
	SubjectReportFiled   = "moderation.report"
)

// Event is the envelope published to every subject on this bus.
type Event struct {
	Subject   string            `json:"subject"`
	Actor     string            `json:"actor,omitempty"`
	Target    string            `json:"target,omitempty"`
	Reason    string            `json:"reason,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
	Timestamp int64             `json:"timestamp"`
}

// Config holds NATS connection settings.
type Config struct {
	URL           string
	Name          string
	ReconnectWait time.Duration
	MaxReconnects int
}

// DefaultConfig returns sensible defaults for a bot-process NATS client.
func DefaultConfig() Config {
	return Config{
		URL:           "nats://localhost:4222",
		Name:          "anonrelay",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1,
	}
}

// Bus publishes and subscribes to moderation/pairing audit events.
type Bus struct {
	conn *nats.Conn
	mu   sync.Mutex
	subs map[string]*nats.Subscription
}

// Connect dials NATS with the given config and returns a ready Bus.
func Connect(cfg Config) (*Bus, error) {
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("[events] disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("[events] reconnected to %s", nc.ConnectedUrl())
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("events: nats connect: %w", err)
	}

	return &Bus{conn: nc, subs: make(map[string]*nats.Subscription)}, nil
}

func (b *Bus) publish(subject string, ev Event) {
	ev.Subject = subject
	ev.Timestamp = time.Now().Unix()

	data, err := json.Marshal(ev)
	if err != nil {
		log.Printf("[events] marshal %s: %v", subject, err)
		return
	}
	if err := b.conn.Publish(subject, data); err != nil {
		// Audit events are best-effort: a NATS outage must never block a
		// ban, a pairing, or a relayed message.
		log.Printf("[events] publish %s: %v", subject, err)
	}
}

// PublishPairCreated matches the signature pairing.Events expects.
func (b *Bus) PublishPairCreated(_ context.Context, a, b2 string) {
	b.publish(SubjectPairCreated, Event{Actor: a, Target: b2})
}

// PublishPairEnded matches the signature pairing.Events expects, taking
// reason as a plain string (pairing.EndReason's underlying type) so this
// package never has to import internal/pairing.
func (b *Bus) PublishPairEnded(_ context.Context, a, b2, reason string) {
	b.publish(SubjectPairEnded, Event{Actor: a, Target: b2, Reason: reason})
}

// PublishBan announces a ban or unban.
func (b *Bus) PublishBan(target, bannedBy, reason string, lifted bool) {
	subject := SubjectBanIssued
	if lifted {
		subject = SubjectBanLifted
	}
	b.publish(subject, Event{Actor: bannedBy, Target: target, Reason: reason})
}

// PublishWarning announces a warning issued to target.
func (b *Bus) PublishWarning(target, warnedBy, reason string) {
	b.publish(SubjectWarningIssued, Event{Actor: warnedBy, Target: target, Reason: reason})
}

// PublishReport announces a report filed against target.
func (b *Bus) PublishReport(target, reportedBy string) {
	b.publish(SubjectReportFiled, Event{Actor: reportedBy, Target: target})
}

// Subscribe registers a handler for subject, decoding each message as an
// Event, so external admin tooling can watch the audit stream live rather
// than polling the Postgres audit store. No binary in this repository
// subscribes.
func (b *Bus) Subscribe(subject string, handler func(Event)) error {
	sub, err := b.conn.Subscribe(subject, func(msg *nats.Msg) {
		var ev Event
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			log.Printf("[events] unmarshal %s: %v", subject, err)
			return
		}
		handler(ev)
	})
	if err != nil {
		return fmt.Errorf("events: subscribe %s: %w", subject, err)
	}

	b.mu.Lock()
	b.subs[subject] = sub
	b.mu.Unlock()
	return nil
}

// Close drains every subscription and the connection.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for subject, sub := range b.subs {
		if err := sub.Drain(); err != nil {
			log.Printf("[events] drain %s: %v", subject, err)
		}
	}
	b.subs = make(map[string]*nats.Subscription)

	if err := b.conn.Drain(); err != nil {
		log.Printf("[events] connection drain: %v", err)
	}
}
