package telegram

import (
	"errors"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/whisper/anonrelay/internal/transport"
)

func TestClassify_Command(t *testing.T) {
	u := tgbotapi.Update{
		Message: &tgbotapi.Message{
			MessageID: 1,
			From:      &tgbotapi.User{ID: 42},
			Chat:      &tgbotapi.Chat{ID: 42},
			Text:      "/chat next",
			Entities: []tgbotapi.MessageEntity{
				{Type: "bot_command", Offset: 0, Length: len("/chat")},
			},
		},
	}

	got, ok := classify(u)
	if !ok {
		t.Fatal("expected classify to accept a command message")
	}
	if got.Command == nil {
		t.Fatal("expected Command to be set")
	}
	if got.Command.Name != "chat" {
		t.Fatalf("Command.Name = %q, want %q", got.Command.Name, "chat")
	}
	if got.Command.Args != "next" {
		t.Fatalf("Command.Args = %q, want %q", got.Command.Args, "next")
	}
	if got.UserID != "42" {
		t.Fatalf("UserID = %q, want %q", got.UserID, "42")
	}
}

func TestClassify_PlainTextMessage(t *testing.T) {
	u := tgbotapi.Update{
		Message: &tgbotapi.Message{
			MessageID: 2,
			From:      &tgbotapi.User{ID: 7},
			Chat:      &tgbotapi.Chat{ID: 7},
			Text:      "hello there",
		},
	}

	got, ok := classify(u)
	if !ok {
		t.Fatal("expected classify to accept a plain message")
	}
	if got.Message == nil || got.Command != nil || got.Callback != nil {
		t.Fatalf("expected only Message set, got %+v", got)
	}
	if got.Message.Text != "hello there" {
		t.Fatalf("Message.Text = %q", got.Message.Text)
	}
	if got.Message.HasMedia {
		t.Fatal("plain text should not be classified as media")
	}
}

func TestClassify_MediaMessage(t *testing.T) {
	u := tgbotapi.Update{
		Message: &tgbotapi.Message{
			MessageID: 3,
			From:      &tgbotapi.User{ID: 7},
			Chat:      &tgbotapi.Chat{ID: 7},
			Photo:     []tgbotapi.PhotoSize{{FileID: "abc"}},
		},
	}

	got, ok := classify(u)
	if !ok {
		t.Fatal("expected classify to accept a media message")
	}
	if !got.Message.HasMedia || got.Message.MediaType != "photo" {
		t.Fatalf("Message = %+v, want HasMedia=true MediaType=photo", got.Message)
	}
}

func TestClassify_AnimationMessage(t *testing.T) {
	u := tgbotapi.Update{
		Message: &tgbotapi.Message{
			MessageID: 4,
			From:      &tgbotapi.User{ID: 7},
			Chat:      &tgbotapi.Chat{ID: 7},
			Animation: &tgbotapi.Animation{FileID: "anim1"},
		},
	}

	got, ok := classify(u)
	if !ok {
		t.Fatal("expected classify to accept an animation message")
	}
	if !got.Message.HasMedia || got.Message.MediaType != "animation" {
		t.Fatalf("Message = %+v, want HasMedia=true MediaType=animation", got.Message)
	}
}

func TestClassify_LocationMessage(t *testing.T) {
	u := tgbotapi.Update{
		Message: &tgbotapi.Message{
			MessageID: 5,
			From:      &tgbotapi.User{ID: 7},
			Chat:      &tgbotapi.Chat{ID: 7},
			Location:  &tgbotapi.Location{Latitude: 1.1, Longitude: 2.2},
		},
	}

	got, ok := classify(u)
	if !ok {
		t.Fatal("expected classify to accept a location message")
	}
	if !got.Message.HasMedia || got.Message.MediaType != "location" {
		t.Fatalf("Message = %+v, want HasMedia=true MediaType=location", got.Message)
	}
}

func TestClassify_ContactMessage(t *testing.T) {
	u := tgbotapi.Update{
		Message: &tgbotapi.Message{
			MessageID: 6,
			From:      &tgbotapi.User{ID: 7},
			Chat:      &tgbotapi.Chat{ID: 7},
			Contact:   &tgbotapi.Contact{PhoneNumber: "+10000000000"},
		},
	}

	got, ok := classify(u)
	if !ok {
		t.Fatal("expected classify to accept a contact message")
	}
	if !got.Message.HasMedia || got.Message.MediaType != "contact" {
		t.Fatalf("Message = %+v, want HasMedia=true MediaType=contact", got.Message)
	}
}

func TestClassify_Callback(t *testing.T) {
	u := tgbotapi.Update{
		CallbackQuery: &tgbotapi.CallbackQuery{
			ID:      "cb1",
			From:    &tgbotapi.User{ID: 99},
			Data:    "rate:positive",
			Message: &tgbotapi.Message{MessageID: 5},
		},
	}

	got, ok := classify(u)
	if !ok {
		t.Fatal("expected classify to accept a callback")
	}
	if got.Callback == nil || got.Callback.Data != "rate:positive" || got.Callback.CallbackID != "cb1" {
		t.Fatalf("Callback = %+v", got.Callback)
	}
	if got.UserID != "99" {
		t.Fatalf("UserID = %q, want 99", got.UserID)
	}
}

func TestClassify_EmptyUpdateRejected(t *testing.T) {
	_, ok := classify(tgbotapi.Update{})
	if ok {
		t.Fatal("expected an update with neither Message nor CallbackQuery to be rejected")
	}
}

func TestClassifyErr(t *testing.T) {
	tests := []struct {
		msg  string
		want error
	}{
		{"Forbidden: bot was blocked by the user", transport.ErrUnreachable},
		{"Bad Request: chat not found", transport.ErrUnreachable},
		{"Too Many Requests: retry after 5", transport.ErrTransient},
	}
	for _, tt := range tests {
		err := classifyErr(errors.New(tt.msg))
		if !errors.Is(err, tt.want) {
			t.Errorf("classifyErr(%q) = %v, want wrapping %v", tt.msg, err, tt.want)
		}
	}

	if classifyErr(nil) != nil {
		t.Error("classifyErr(nil) should return nil")
	}
}

func TestParseChatID_Invalid(t *testing.T) {
	_, err := parseChatID("not-a-number")
	if !errors.Is(err, transport.ErrInvalidRecipient) {
		t.Fatalf("parseChatID error = %v, want ErrInvalidRecipient", err)
	}
}

func TestToInlineKeyboard_Shape(t *testing.T) {
	kb := transport.Keyboard{
		{{Label: "Yes", Data: "y"}, {Label: "No", Data: "n"}},
	}
	markup := toInlineKeyboard(kb)
	if len(markup.InlineKeyboard) != 1 || len(markup.InlineKeyboard[0]) != 2 {
		t.Fatalf("unexpected keyboard shape: %+v", markup.InlineKeyboard)
	}
}
