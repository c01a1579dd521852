package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/madakixo/jayy-bot/internal/types"
)

// EventHandler consumes validated inbound events.
type EventHandler interface {
	HandleEvent(ctx context.Context, ev types.InboundEvent) error
}

// Adapter bridges Telegram to the workflow engine. Updates become typed
// inbound events; the Transport methods carry engine output back out.
type Adapter struct {
	bot     *tgbotapi.BotAPI
	handler EventHandler
}

// New creates a Telegram adapter.
func New(token string, handler EventHandler) (*Adapter, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	return &Adapter{bot: bot, handler: handler}, nil
}

// Start begins long-polling for Telegram updates.
func (a *Adapter) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30

	updates := a.bot.GetUpdatesChan(u)

	for {
		select {
		case update := <-updates:
			if ev, ok := a.toEvent(update); ok {
				go a.dispatch(ctx, ev)
			}
		case <-ctx.Done():
			a.bot.StopReceivingUpdates()
			return
		}
	}
}

func (a *Adapter) dispatch(ctx context.Context, ev types.InboundEvent) {
	if err := a.handler.HandleEvent(ctx, ev); err != nil {
		slog.Error("handle inbound event failed", "requester", ev.Requester, "kind", ev.Kind, "error", err)
	}
}

// toEvent converts a raw update into a validated inbound event. Everything
// outside the closed text|location|buttonPress|command set is dropped here,
// so the engine never sees an untyped payload.
func (a *Adapter) toEvent(update tgbotapi.Update) (types.InboundEvent, bool) {
	if cq := update.CallbackQuery; cq != nil && cq.From != nil {
		// Acknowledge the press so the client stops its spinner.
		if _, err := a.bot.Request(tgbotapi.NewCallback(cq.ID, "")); err != nil {
			slog.Warn("answer callback failed", "error", err)
		}
		return types.InboundEvent{
			Requester: requesterID(cq.From.ID),
			Kind:      types.KindButtonPress,
			Button:    cq.Data,
		}, true
	}

	msg := update.Message
	if msg == nil || msg.From == nil {
		return types.InboundEvent{}, false
	}
	requester := requesterID(msg.From.ID)

	switch {
	case msg.IsCommand():
		return types.InboundEvent{
			Requester: requester,
			Kind:      types.KindCommand,
			Command:   msg.Command(),
		}, true
	case msg.Location != nil:
		return types.InboundEvent{
			Requester: requester,
			Kind:      types.KindLocation,
			Latitude:  msg.Location.Latitude,
			Longitude: msg.Location.Longitude,
		}, true
	case msg.Text != "":
		return types.InboundEvent{
			Requester: requester,
			Kind:      types.KindText,
			Text:      msg.Text,
		}, true
	default:
		return types.InboundEvent{}, false
	}
}

// SendText sends a plain message to the requester's private chat.
func (a *Adapter) SendText(_ context.Context, to types.RequesterID, text string) error {
	msg := tgbotapi.NewMessage(chatID(to), text)
	if _, err := a.bot.Send(msg); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// SendButtons sends a message with one inline button per row.
func (a *Adapter) SendButtons(_ context.Context, to types.RequesterID, text string, buttons []types.Button) error {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(buttons))
	for _, b := range buttons {
		var btn tgbotapi.InlineKeyboardButton
		if b.IsURL {
			btn = tgbotapi.NewInlineKeyboardButtonURL(b.Label, b.Data)
		} else {
			btn = tgbotapi.NewInlineKeyboardButtonData(b.Label, b.Data)
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(btn))
	}

	msg := tgbotapi.NewMessage(chatID(to), text)
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	if _, err := a.bot.Send(msg); err != nil {
		return fmt.Errorf("send buttons: %w", err)
	}
	return nil
}

// SendMediaGroup sends thumbnail previews as one album.
func (a *Adapter) SendMediaGroup(_ context.Context, to types.RequesterID, items []types.MediaItem) error {
	media := make([]interface{}, 0, len(items))
	for _, item := range items {
		photo := tgbotapi.NewInputMediaPhoto(tgbotapi.FileURL(item.URL))
		photo.Caption = item.Caption
		media = append(media, photo)
	}
	group := tgbotapi.NewMediaGroup(chatID(to), media)
	if _, err := a.bot.SendMediaGroup(group); err != nil {
		return fmt.Errorf("send media group: %w", err)
	}
	return nil
}

// SendProtectedPhoto sends image bytes with forwarding and saving disabled.
// The typed PhotoConfig predates protect_content, so this goes through the
// raw sendPhoto endpoint.
func (a *Adapter) SendProtectedPhoto(_ context.Context, to types.RequesterID, photo []byte, caption string) error {
	params := make(tgbotapi.Params)
	params.AddNonZero64("chat_id", chatID(to))
	params.AddNonEmpty("caption", caption)
	params.AddBool("protect_content", true)

	files := []tgbotapi.RequestFile{{
		Name: "photo",
		Data: tgbotapi.FileBytes{Name: "copy.png", Bytes: photo},
	}}
	if _, err := a.bot.UploadFiles("sendPhoto", params, files); err != nil {
		return fmt.Errorf("send protected photo: %w", err)
	}
	return nil
}

func requesterID(userID int64) types.RequesterID {
	return types.RequesterID(strconv.FormatInt(userID, 10))
}

func chatID(id types.RequesterID) int64 {
	n, _ := strconv.ParseInt(string(id), 10, 64)
	return n
}
