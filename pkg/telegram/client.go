// Copyright 2024-2026 Aiku AI

package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/aiku/chanrelay/pkg/relay"
	"github.com/aiku/chanrelay/pkg/session"
)

const defaultPollTimeout = 30

// ErrUpdatesClosed is returned by Listen when the bot stops delivering
// updates without being asked to.
var ErrUpdatesClosed = errors.New("telegram update channel closed")

// Client is a Telegram bot acting as the relay account.
type Client struct {
	bot *tgbotapi.BotAPI

	// pollTimeout is the long polling timeout in seconds.
	pollTimeout int
	log         zerolog.Logger
}

var _ relay.Platform = (*Client)(nil)

// NewClient connects to the Bot API. The token from cfg takes precedence
// over the one recorded in the session.
func NewClient(cfg Config, sess *session.Session, log zerolog.Logger) (*Client, error) {
	token := cfg.BotToken
	if token == "" && sess != nil {
		token = sess.Token
	}
	if token == "" {
		return nil, fmt.Errorf("no Telegram bot token configured")
	}
	bot, err := newBot(token, cfg.APIEndpoint)
	if err != nil {
		return nil, err
	}
	return &Client{
		bot:         bot,
		pollTimeout: defaultPollTimeout,
		log:         log.With().Str("component", "tg_client").Logger(),
	}, nil
}

func newBot(token, endpoint string) (*tgbotapi.BotAPI, error) {
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	bot, err := tgbotapi.NewBotAPIWithAPIEndpoint(token, endpoint)
	if err != nil {
		return nil, fmt.Errorf("telegram bot init: %w", err)
	}
	return bot, nil
}

// Self returns the bot's user ID.
func (c *Client) Self(_ context.Context) (string, error) {
	c.log.Info().
		Int64("user_id", c.bot.Self.ID).
		Str("username", c.bot.Self.UserName).
		Msg("Logged in")
	return strconv.FormatInt(c.bot.Self.ID, 10), nil
}

// Resolve looks a chat up by numeric ID or public username.
func (c *Client) Resolve(_ context.Context, ref relay.ChannelRef) (relay.Channel, error) {
	cfg := tgbotapi.ChatInfoConfig{}
	if id, ok := ref.Numeric(); ok {
		cfg.ChatID = id
	} else {
		cfg.SuperGroupUsername = "@" + ref.Handle()
	}

	chat, err := c.bot.GetChat(cfg)
	if err != nil {
		return relay.Channel{}, &relay.ResolutionError{Ref: ref, Err: err}
	}
	return relay.Channel{
		ID:     strconv.FormatInt(chat.ID, 10),
		Name:   chatDisplayName(&chat),
		Ref:    ref,
		Native: &chat,
	}, nil
}

func chatDisplayName(chat *tgbotapi.Chat) string {
	switch {
	case chat.Title != "":
		return chat.Title
	case chat.UserName != "":
		return "@" + chat.UserName
	default:
		return chat.FirstName
	}
}

// Listen long-polls for updates and delivers new messages and channel posts
// to handler until ctx is cancelled.
func (c *Client) Listen(ctx context.Context, handler relay.MessageHandler) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = c.pollTimeout
	u.AllowedUpdates = []string{"message", "channel_post"}
	updates := c.bot.GetUpdatesChan(u)

	c.log.Info().Msg("Telegram polling started")

	for {
		select {
		case <-ctx.Done():
			c.bot.StopReceivingUpdates()
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return ErrUpdatesClosed
			}
			msg := updateMessage(update)
			if msg == nil {
				continue
			}
			c.log.Debug().
				Int("message_id", msg.MessageID).
				Int64("chat_id", msg.Chat.ID).
				Msg("Received new message")
			handler(toRelayMessage(msg))
		}
	}
}

// updateMessage returns the message or channel post carried by update.
func updateMessage(update tgbotapi.Update) *tgbotapi.Message {
	msg := update.ChannelPost
	if msg == nil {
		msg = update.Message
	}
	if msg == nil || msg.Chat == nil {
		return nil
	}
	return msg
}
