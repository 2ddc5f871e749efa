// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package mattermost

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mattermost/mattermost/server/public/model"
	"github.com/rs/zerolog"

	"github.com/aiku/chanrelay/pkg/relay"
	"github.com/aiku/chanrelay/pkg/session"
)

const (
	maxReconnectAttempts = 5
	reconnectBaseDelay   = 2 * time.Second
)

// ErrNotLoggedIn is returned when the session carries no token.
var ErrNotLoggedIn = errors.New("not logged in to Mattermost")

// Client is a Mattermost connection acting as the relay account.
type Client struct {
	cfg Config

	client    *model.Client4
	wsClient  *model.WebSocketClient
	userID    string
	teamID    string
	serverURL string

	reconnectDelay time.Duration
	log            zerolog.Logger

	// uploads holds file IDs already uploaded for a pending copy, keyed by
	// dedupe key and then source file ID.
	uploadsLock sync.Mutex
	uploads     map[string]map[string]string
}

var _ relay.Platform = (*Client)(nil)

// NewClient creates a client from a stored session. The server URL and
// access token from cfg take precedence over the ones recorded in the
// session, so a rotated token does not need a new login.
func NewClient(cfg Config, sess *session.Session, log zerolog.Logger) (*Client, error) {
	if sess == nil {
		sess = &session.Session{}
	}
	token := cfg.AccessToken
	if token == "" {
		token = sess.Token
	}
	if token == "" {
		return nil, ErrNotLoggedIn
	}
	serverURL := cfg.ServerURL
	if serverURL == "" {
		serverURL = sess.ServerURL
	}
	if serverURL == "" {
		return nil, fmt.Errorf("no Mattermost server URL configured")
	}

	client := model.NewAPIv4Client(serverURL)
	client.SetToken(token)

	return &Client{
		cfg:            cfg,
		client:         client,
		userID:         sess.UserID,
		teamID:         sess.TeamID,
		serverURL:      serverURL,
		reconnectDelay: reconnectBaseDelay,
		log:            log.With().Str("component", "mm_client").Logger(),
	}, nil
}

// Self verifies the session and returns the relay account's user ID. It
// also settles the default team used for bare channel names.
func (c *Client) Self(ctx context.Context) (string, error) {
	me, _, err := c.client.GetMe(ctx, "")
	if err != nil {
		return "", fmt.Errorf("failed to verify Mattermost session: %w", err)
	}
	c.userID = me.Id
	c.log.Info().Str("user_id", me.Id).Str("username", me.Username).Msg("Logged in")

	if c.teamID == "" {
		teamID, err := fetchFirstTeamID(ctx, c.client, me.Id)
		if err != nil {
			return "", err
		}
		c.teamID = teamID
	}
	return me.Id, nil
}

// Resolve maps a channel reference to a channel.
func (c *Client) Resolve(ctx context.Context, ref relay.ChannelRef) (relay.Channel, error) {
	ch, err := c.lookupChannel(ctx, parseRef(ref))
	if err != nil {
		return relay.Channel{}, &relay.ResolutionError{Ref: ref, Err: err}
	}
	return relay.Channel{
		ID:     ch.Id,
		Name:   channelDisplayName(ch),
		Ref:    ref,
		Native: ch,
	}, nil
}

func (c *Client) lookupChannel(ctx context.Context, ref parsedRef) (*model.Channel, error) {
	switch ref.kind {
	case refDirect:
		user, _, err := c.client.GetUserByUsername(ctx, ref.name, "")
		if err != nil {
			return nil, fmt.Errorf("failed to find user %s: %w", ref.name, err)
		}
		ch, _, err := c.client.CreateDirectChannel(ctx, c.userID, user.Id)
		if err != nil {
			return nil, fmt.Errorf("failed to open direct channel: %w", err)
		}
		return ch, nil

	case refByTeamName:
		ch, _, err := c.client.GetChannelByNameForTeamName(ctx, ref.name, ref.team, "")
		if err != nil {
			return nil, fmt.Errorf("failed to find channel %s in team %s: %w", ref.name, ref.team, err)
		}
		return ch, nil

	case refByID:
		ch, _, err := c.client.GetChannel(ctx, ref.name, "")
		if err == nil {
			return ch, nil
		}
		c.log.Debug().Err(err).Str("ref", ref.name).Msg("Not a channel ID, trying as name")
	}

	if c.teamID == "" {
		return nil, fmt.Errorf("no team to look up channel %s in", ref.name)
	}
	ch, _, err := c.client.GetChannelByName(ctx, ref.name, c.teamID, "")
	if err != nil {
		return nil, fmt.Errorf("failed to find channel %s: %w", ref.name, err)
	}
	return ch, nil
}

// Listen connects the WebSocket and delivers new posts to handler until ctx
// is cancelled. A dropped connection is re-established with backoff; it is
// an error only when every attempt fails.
func (c *Client) Listen(ctx context.Context, handler relay.MessageHandler) error {
	if err := c.connectWebSocket(); err != nil {
		return err
	}
	defer c.Disconnect()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-c.wsClient.EventChannel:
			if !ok {
				c.log.Warn().Msg("WebSocket event channel closed, reconnecting")
				if err := c.reconnect(ctx); err != nil {
					return err
				}
				continue
			}
			if evt == nil {
				continue
			}
			c.handleEvent(evt, handler)
		}
	}
}

func (c *Client) connectWebSocket() error {
	wsURL := httpToWS(c.serverURL)
	ws, err := model.NewWebSocketClient4(wsURL, c.client.AuthToken)
	if err != nil {
		return fmt.Errorf("failed to create websocket client: %w", err)
	}
	ws.Listen()
	c.wsClient = ws

	c.log.Info().Str("ws_url", wsURL).Msg("WebSocket connected")
	return nil
}

func (c *Client) reconnect(ctx context.Context) error {
	var err error
	for attempt := 1; attempt <= maxReconnectAttempts; attempt++ {
		delay := time.Duration(attempt) * c.reconnectDelay
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		if err = c.connectWebSocket(); err == nil {
			return nil
		}
		c.log.Warn().Err(err).
			Int("attempt", attempt).
			Dur("delay", delay).
			Msg("Failed to reconnect WebSocket")
	}
	return fmt.Errorf("websocket reconnect failed after %d attempts: %w", maxReconnectAttempts, err)
}

// Disconnect closes the WebSocket connection.
func (c *Client) Disconnect() {
	if c.wsClient != nil {
		c.wsClient.Close()
		c.wsClient = nil
	}
}

// httpToWS converts an HTTP(S) URL to a WS(S) URL.
func httpToWS(url string) string {
	if strings.HasPrefix(url, "https://") {
		return "wss://" + strings.TrimPrefix(url, "https://")
	}
	if strings.HasPrefix(url, "http://") {
		return "ws://" + strings.TrimPrefix(url, "http://")
	}
	return url
}
