// Package telegram implements internal/transport.Transport over
// go-telegram-bot-api/v5's long-polling client, the concrete messaging
// platform this relay is built against (spec.md §1's "Telegram-shaped"
// framing).
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/whisper/anonrelay/internal/transport"
)

// Adapter wraps a tgbotapi.BotAPI as a transport.Transport.
type Adapter struct {
	api *tgbotapi.BotAPI
}

// New connects to the Telegram Bot API with token and verifies it with a
// getMe call before returning.
func New(token string) (*Adapter, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram: connect: %w", err)
	}
	return &Adapter{api: api}, nil
}

// Updates starts long-polling and returns the classified update channel.
// It spawns one goroutine that translates tgbotapi.Update values into
// transport.Update and forwards them until ctx is canceled.
func (a *Adapter) Updates(ctx context.Context) <-chan transport.Update {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = 60
	raw := a.api.GetUpdatesChan(cfg)

	out := make(chan transport.Update)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				a.api.StopReceivingUpdates()
				return
			case u, ok := <-raw:
				if !ok {
					return
				}
				if classified, ok := classify(u); ok {
					select {
					case out <- classified:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()
	return out
}

// classify translates one tgbotapi.Update into our tagged transport.Update,
// replacing the reflective "check which field is non-nil" dispatch common
// to raw bot-API consumers with a single switch performed once per update.
func classify(u tgbotapi.Update) (transport.Update, bool) {
	switch {
	case u.CallbackQuery != nil:
		cq := u.CallbackQuery
		msgID := 0
		if cq.Message != nil {
			msgID = cq.Message.MessageID
		}
		return transport.Update{
			UserID: strconv.FormatInt(cq.From.ID, 10),
			ChatID: cq.From.ID,
			Callback: &transport.CallbackUpdate{
				Data:       cq.Data,
				CallbackID: cq.ID,
				MessageID:  msgID,
			},
		}, true

	case u.Message != nil:
		msg := u.Message
		userID := strconv.FormatInt(msg.From.ID, 10)

		if msg.IsCommand() {
			return transport.Update{
				UserID: userID,
				ChatID: msg.Chat.ID,
				Command: &transport.CommandUpdate{
					Name: msg.Command(),
					Args: msg.CommandArguments(),
				},
			}, true
		}

		return transport.Update{
			UserID: userID,
			ChatID: msg.Chat.ID,
			Message: &transport.MessageUpdate{
				Text:      msg.Text,
				MessageID: msg.MessageID,
				HasMedia:  hasMedia(msg),
				MediaType: mediaType(msg),
			},
		}, true
	}

	return transport.Update{}, false
}

func hasMedia(msg *tgbotapi.Message) bool {
	return mediaType(msg) != ""
}

func mediaType(msg *tgbotapi.Message) string {
	switch {
	case len(msg.Photo) > 0:
		return "photo"
	case msg.Video != nil:
		return "video"
	case msg.Voice != nil:
		return "voice"
	case msg.VideoNote != nil:
		return "video_note"
	case msg.Sticker != nil:
		return "sticker"
	case msg.Document != nil:
		return "document"
	case msg.Audio != nil:
		return "audio"
	case msg.Animation != nil:
		return "animation"
	case msg.Location != nil:
		return "location"
	case msg.Contact != nil:
		return "contact"
	default:
		return ""
	}
}

// SendText implements transport.Transport.
func (a *Adapter) SendText(_ context.Context, userID, text string, kb transport.Keyboard) error {
	chatID, err := parseChatID(userID)
	if err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(chatID, text)
	if kb != nil {
		msg.ReplyMarkup = toInlineKeyboard(kb)
	}

	_, err = a.api.Send(msg)
	return classifyErr(err)
}

// Relay implements transport.Transport using Telegram's copyMessage, which
// delivers the content of a message to another chat without the
// "forwarded from" attribution a plain forward would carry — the platform
// mechanism spec.md §4.2 relies on to keep both sides anonymous.
func (a *Adapter) Relay(_ context.Context, fromChatID int64, fromMessageID int, toUserID string) error {
	toChatID, err := parseChatID(toUserID)
	if err != nil {
		return err
	}

	copyMsg := tgbotapi.NewCopyMessage(toChatID, fromChatID, fromMessageID)
	_, err = a.api.CopyMessage(copyMsg)
	return classifyErr(err)
}

// AnswerCallback implements transport.Transport.
func (a *Adapter) AnswerCallback(_ context.Context, callbackID, text string) error {
	cb := tgbotapi.NewCallback(callbackID, text)
	_, err := a.api.Request(cb)
	return classifyErr(err)
}

// Close implements transport.Transport.
func (a *Adapter) Close() error {
	a.api.StopReceivingUpdates()
	return nil
}

func parseChatID(userID string) (int64, error) {
	id, err := strconv.ParseInt(userID, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", transport.ErrInvalidRecipient, userID)
	}
	return id, nil
}

func toInlineKeyboard(kb transport.Keyboard) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, len(kb))
	for i, row := range kb {
		buttons := make([]tgbotapi.InlineKeyboardButton, len(row))
		for j, b := range row {
			buttons[j] = tgbotapi.NewInlineKeyboardButtonData(b.Label, b.Data)
		}
		rows[i] = buttons
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// classifyErr maps a raw tgbotapi error into one of transport's sentinel
// errors by inspecting the description Telegram's Bot API returns, since
// the library surfaces platform errors as plain strings rather than typed
// codes for most failure modes.
func classifyErr(err error) error {
	if err == nil {
		return nil
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "blocked by the user"),
		strings.Contains(msg, "user is deactivated"),
		strings.Contains(msg, "chat not found"):
		return fmt.Errorf("%w: %v", transport.ErrUnreachable, err)
	case strings.Contains(msg, "too many requests"),
		strings.Contains(msg, "retry after"),
		strings.Contains(msg, "timeout"):
		return fmt.Errorf("%w: %v", transport.ErrTransient, err)
	default:
		return fmt.Errorf("%w: %v", transport.ErrTransient, err)
	}
}
