// Copyright 2024-2026 Aiku AI

package telegram

import (
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/aiku/chanrelay/pkg/relay"
)

// toRelayMessage converts a Bot API message. Captions count as text so a
// photo with a caption reads the same as any other message.
func toRelayMessage(msg *tgbotapi.Message) *relay.Message {
	out := &relay.Message{
		ID:        strconv.Itoa(msg.MessageID),
		ChannelID: strconv.FormatInt(msg.Chat.ID, 10),
		AuthorID:  authorID(msg),
		Text:      msg.Text,
		Entities:  convertEntities(msg.Entities),
		Media:     messageMedia(msg),
		Raw:       msg,
	}
	if out.Text == "" && msg.Caption != "" {
		out.Text = msg.Caption
		out.Entities = convertEntities(msg.CaptionEntities)
	}
	if msg.ReplyMarkup != nil {
		out.Buttons = convertKeyboard(msg.ReplyMarkup)
	}
	return out
}

// authorID is the sending user, or the sending chat for channel posts and
// anonymous admins.
func authorID(msg *tgbotapi.Message) string {
	switch {
	case msg.From != nil:
		return strconv.FormatInt(msg.From.ID, 10)
	case msg.SenderChat != nil:
		return strconv.FormatInt(msg.SenderChat.ID, 10)
	default:
		return ""
	}
}

func convertEntities(entities []tgbotapi.MessageEntity) []relay.Entity {
	if len(entities) == 0 {
		return nil
	}
	out := make([]relay.Entity, 0, len(entities))
	for _, e := range entities {
		out = append(out, relay.Entity{
			Type:   e.Type,
			Offset: e.Offset,
			Length: e.Length,
			URL:    e.URL,
		})
	}
	return out
}

func messageMedia(msg *tgbotapi.Message) []relay.Media {
	var media []relay.Media
	if n := len(msg.Photo); n > 0 {
		// Sizes are ordered smallest first.
		p := msg.Photo[n-1]
		media = append(media, relay.Media{ID: p.FileID, MimeType: "image/jpeg", Size: int64(p.FileSize)})
	}
	if d := msg.Document; d != nil {
		media = append(media, relay.Media{ID: d.FileID, Name: d.FileName, MimeType: d.MimeType, Size: int64(d.FileSize)})
	}
	if v := msg.Video; v != nil {
		media = append(media, relay.Media{ID: v.FileID, MimeType: v.MimeType, Size: int64(v.FileSize)})
	}
	if a := msg.Audio; a != nil {
		media = append(media, relay.Media{ID: a.FileID, MimeType: a.MimeType, Size: int64(a.FileSize)})
	}
	if v := msg.Voice; v != nil {
		media = append(media, relay.Media{ID: v.FileID, MimeType: v.MimeType, Size: int64(v.FileSize)})
	}
	if s := msg.Sticker; s != nil {
		media = append(media, relay.Media{ID: s.FileID, MimeType: "image/webp", Size: int64(s.FileSize)})
	}
	return media
}

func convertKeyboard(markup *tgbotapi.InlineKeyboardMarkup) [][]relay.Button {
	var rows [][]relay.Button
	for _, row := range markup.InlineKeyboard {
		buttons := make([]relay.Button, 0, len(row))
		for _, b := range row {
			btn := relay.Button{Text: b.Text}
			if b.URL != nil {
				btn.URL = *b.URL
			}
			if b.CallbackData != nil {
				btn.Data = *b.CallbackData
			}
			buttons = append(buttons, btn)
		}
		if len(buttons) > 0 {
			rows = append(rows, buttons)
		}
	}
	return rows
}

// inlineKeyboard rebuilds reply markup from relay buttons. Buttons with
// neither a URL nor callback data are dropped since Telegram rejects them.
func inlineKeyboard(rows [][]relay.Button) *tgbotapi.InlineKeyboardMarkup {
	var keyboard [][]tgbotapi.InlineKeyboardButton
	for _, row := range rows {
		var out []tgbotapi.InlineKeyboardButton
		for _, b := range row {
			switch {
			case b.URL != "":
				out = append(out, tgbotapi.NewInlineKeyboardButtonURL(b.Text, b.URL))
			case b.Data != "":
				out = append(out, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data))
			}
		}
		if len(out) > 0 {
			keyboard = append(keyboard, out)
		}
	}
	if len(keyboard) == 0 {
		return nil
	}
	return &tgbotapi.InlineKeyboardMarkup{InlineKeyboard: keyboard}
}
