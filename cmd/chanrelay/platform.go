// Copyright 2024-2026 Aiku AI

package main

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aiku/chanrelay/pkg/config"
	"github.com/aiku/chanrelay/pkg/mattermost"
	"github.com/aiku/chanrelay/pkg/relay"
	"github.com/aiku/chanrelay/pkg/session"
	"github.com/aiku/chanrelay/pkg/telegram"
)

func newAuthenticator(cfg *config.Config, prompter session.Prompter) session.Authenticator {
	if cfg.Platform == telegram.PlatformName {
		return telegram.NewAuthenticator(cfg.Telegram)
	}
	return mattermost.NewAuthenticator(cfg.Mattermost, prompter)
}

func newPlatform(cfg *config.Config, sess *session.Session, log zerolog.Logger) (relay.Platform, error) {
	switch cfg.Platform {
	case mattermost.PlatformName:
		client, err := mattermost.NewClient(cfg.Mattermost, sess, log)
		if err != nil {
			return nil, err
		}
		return client, nil
	case telegram.PlatformName:
		client, err := telegram.NewClient(cfg.Telegram, sess, log)
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		return nil, &config.ConfigError{Field: "PLATFORM", Reason: fmt.Sprintf("unknown platform %q", cfg.Platform)}
	}
}

// checkSession refuses a session made for another platform.
func checkSession(cfg *config.Config, sess *session.Session) error {
	if sess.Platform != "" && sess.Platform != cfg.Platform {
		return &config.ConfigError{
			Field:  "SESSION_NAME",
			Reason: fmt.Sprintf("session %q was created for %s, not %s", cfg.Session.Name, sess.Platform, cfg.Platform),
		}
	}
	return nil
}
