// Copyright 2024-2026 Aiku AI

package mattermost

import (
	"strings"

	"gopkg.in/yaml.v3"
)

// PlatformName identifies this backend in configuration and sessions.
const PlatformName = "mattermost"

// Config holds the Mattermost backend configuration.
type Config struct {
	ServerURL string `yaml:"server_url" env:"SERVER_URL"`
	// AccessToken is a personal access or bot token. When set, login uses
	// it instead of prompting for a username and password.
	AccessToken string `yaml:"access_token" env:"ACCESS_TOKEN"`
	// BotPrefix is a username prefix for echo prevention. Posts from any
	// username starting with it are never relayed. Leave empty to disable.
	BotPrefix string `yaml:"bot_prefix" env:"BOT_PREFIX"`
}

func (c *Config) UnmarshalYAML(node *yaml.Node) error {
	type rawConfig Config
	return node.Decode((*rawConfig)(c))
}

// PostProcess normalizes the server URL.
func (c *Config) PostProcess() {
	c.ServerURL = strings.TrimRight(strings.TrimSpace(c.ServerURL), "/")
}
