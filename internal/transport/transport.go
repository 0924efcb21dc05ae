// Package transport defines the boundary between the relay core and
// whatever messaging platform actually carries messages between paired
// users. The only concrete implementation is internal/transport/telegram,
// but the interface keeps the router, sweeper, and admin flow free of any
// go-telegram-bot-api import.
package transport

import (
	"context"
	"errors"
)

// Sentinel errors a Transport implementation classifies its failures into,
// so the router can decide whether to retry, drop the pair, or just log.
var (
	// ErrTransient means the send may succeed if retried shortly (a
	// platform rate limit or a momentary network blip).
	ErrTransient = errors.New("transport: transient failure")
	// ErrUnreachable means the recipient can no longer be reached on this
	// platform (they blocked the bot, deleted their account) and the pair
	// should be torn down.
	ErrUnreachable = errors.New("transport: recipient unreachable")
	// ErrInvalidRecipient means the recipient identifier itself is
	// malformed or unknown — a programming error, not a transient one.
	ErrInvalidRecipient = errors.New("transport: invalid recipient")
)

// CommandUpdate is an inbound slash command, e.g. "/chat" or "/report spam".
type CommandUpdate struct {
	Name string // without the leading slash, e.g. "chat"
	Args string
}

// MessageUpdate is an inbound free-text or media message meant for relay
// to the sender's current partner, if any.
type MessageUpdate struct {
	Text      string
	MessageID int
	HasMedia  bool
	MediaType string // "photo", "video", "video_note", "voice", "audio", "sticker", "animation", "document", "location", "contact", ""
}

// CallbackUpdate is an inbound inline-keyboard button press, e.g. a rating
// thumbs-up/down or an admin confirmation.
type CallbackUpdate struct {
	Data       string
	CallbackID string
	MessageID  int
}

// Update is a pre-classified inbound event, replacing the platform SDK's
// own "check which field is non-nil" dispatch with a single tagged union:
// exactly one of Command, Message, or Callback is set. UserID and ChatID
// identify the sender regardless of which variant fired.
type Update struct {
	UserID   string
	ChatID   int64
	Command  *CommandUpdate
	Message  *MessageUpdate
	Callback *CallbackUpdate
}

// Keyboard is a minimal inline-keyboard description: rows of (label, data)
// button pairs. Platform adapters translate this into their own markup
// type; callers never construct platform-specific keyboards directly.
type Keyboard [][]Button

// Button is one inline-keyboard button.
type Button struct {
	Label string
	Data  string
}

// Transport is the relay core's view of the messaging platform: receiving
// classified updates and sending text, relaying content between paired
// users without revealing either party's platform identity, and acking
// callback-query button presses.
type Transport interface {
	// Updates returns a channel of classified inbound events. The channel
	// closes when the underlying connection is closed or ctx is canceled.
	Updates(ctx context.Context) <-chan Update

	// SendText sends a plain text message to userID, optionally with an
	// inline keyboard (pass a nil Keyboard for none).
	SendText(ctx context.Context, userID, text string, kb Keyboard) error

	// Relay forwards the message identified by (fromChatID, fromMessageID)
	// to toUserID without attaching any "forwarded from" attribution,
	// preserving the sender's anonymity (spec.md §4.2's relay invariant).
	Relay(ctx context.Context, fromChatID int64, fromMessageID int, toUserID string) error

	// AnswerCallback acknowledges a callback query, optionally showing text
	// as a toast notification on the user's client.
	AnswerCallback(ctx context.Context, callbackID, text string) error

	// Close shuts down the underlying connection.
	Close() error
}
