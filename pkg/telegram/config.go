// Copyright 2024-2026 Aiku AI

package telegram

import (
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// PlatformName identifies this backend in configuration and sessions.
const PlatformName = "telegram"

// Config holds the Telegram backend configuration.
type Config struct {
	BotToken string `yaml:"bot_token" env:"BOT_TOKEN"`
	// APIEndpoint is a Bot API URL template with two %s verbs for the token
	// and the method. Empty means the public Bot API.
	APIEndpoint string `yaml:"api_endpoint" env:"TELEGRAM_API_ENDPOINT"`
}

// PostProcess fills in the default endpoint.
func (c *Config) PostProcess() {
	c.BotToken = strings.TrimSpace(c.BotToken)
	if c.APIEndpoint == "" {
		c.APIEndpoint = tgbotapi.APIEndpoint
	}
}
