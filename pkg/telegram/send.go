// Copyright 2024-2026 Aiku AI

package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/aiku/chanrelay/pkg/relay"
)

// Send copies msg into target with copyMessage. The Bot API has no
// idempotency key, so opts.DedupeKey is only logged.
func (c *Client) Send(_ context.Context, target relay.Channel, msg *relay.Message, opts relay.SendOptions) error {
	chatID, err := strconv.ParseInt(target.ID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid target chat ID %q: %w", target.ID, err)
	}
	fromChatID, err := strconv.ParseInt(msg.ChannelID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid source chat ID %q: %w", msg.ChannelID, err)
	}
	messageID, err := strconv.Atoi(msg.ID)
	if err != nil {
		return fmt.Errorf("invalid message ID %q: %w", msg.ID, err)
	}

	cfg := tgbotapi.NewCopyMessage(chatID, fromChatID, messageID)
	if src, ok := msg.Raw.(*tgbotapi.Message); ok && src.ReplyMarkup != nil {
		cfg.ReplyMarkup = src.ReplyMarkup
	} else if kb := inlineKeyboard(msg.Buttons); kb != nil {
		cfg.ReplyMarkup = kb
	}

	copied, err := c.bot.CopyMessage(cfg)
	if err != nil {
		return classifyError(fmt.Errorf("copyMessage failed: %w", err))
	}

	c.log.Trace().
		Int("message_id", copied.MessageID).
		Int64("chat_id", chatID).
		Str("dedupe_key", opts.DedupeKey).
		Msg("Copied message")
	return nil
}

// classifyError turns a Bot API 429 into a relay.RateLimitError carrying the
// retry_after the API asked for.
func classifyError(err error) error {
	var apiErr *tgbotapi.Error
	if !errors.As(err, &apiErr) || apiErr.Code != http.StatusTooManyRequests {
		return err
	}
	return &relay.RateLimitError{
		Wait: time.Duration(apiErr.RetryAfter) * time.Second,
		Err:  err,
	}
}
