// Copyright 2024-2026 Aiku AI

package telegram

import (
	"context"
	"strconv"

	"github.com/aiku/chanrelay/pkg/session"
)

// TokenAuthenticator validates a bot token with getMe and records the bot's
// identity. It never prompts.
type TokenAuthenticator struct {
	Token       string
	APIEndpoint string
}

var _ session.Authenticator = (*TokenAuthenticator)(nil)

// NewAuthenticator returns the authenticator for cfg.
func NewAuthenticator(cfg Config) *TokenAuthenticator {
	return &TokenAuthenticator{Token: cfg.BotToken, APIEndpoint: cfg.APIEndpoint}
}

func (t *TokenAuthenticator) Authenticate(_ context.Context) (*session.Session, error) {
	bot, err := newBot(t.Token, t.APIEndpoint)
	if err != nil {
		return nil, err
	}
	return &session.Session{
		Platform: PlatformName,
		Token:    t.Token,
		UserID:   strconv.FormatInt(bot.Self.ID, 10),
		Username: bot.Self.UserName,
	}, nil
}
