// Copyright 2024-2026 Aiku AI

package mattermost

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mattermost/mattermost/server/public/model"

	"github.com/aiku/chanrelay/pkg/relay"
)

// handleEvent dispatches a Mattermost WebSocket event. Only new posts are
// relayed; edits, deletions and reactions are ignored.
func (c *Client) handleEvent(evt *model.WebSocketEvent, handler relay.MessageHandler) {
	switch evt.EventType() {
	case model.WebsocketEventPosted:
		c.handlePosted(evt, handler)
	default:
		c.log.Trace().Str("event_type", string(evt.EventType())).Msg("Unhandled event type")
	}
}

func (c *Client) handlePosted(evt *model.WebSocketEvent, handler relay.MessageHandler) {
	post, err := c.parsePostedEvent(evt)
	if err != nil {
		c.log.Warn().Err(err).Msg("Failed to parse posted event")
		return
	}
	if post == nil {
		return
	}

	c.log.Debug().
		Str("post_id", post.Id).
		Str("channel_id", post.ChannelId).
		Str("user_id", post.UserId).
		Msg("Received new message")

	handler(postToMessage(post))
}

// parsePostedEvent extracts a post from a WebSocket event and applies the
// backend's echo prevention. Returns (nil, nil) to skip silently, (nil, err)
// to log an error, or (post, nil) to proceed. Posts by the relay account
// itself are left for the relay to drop.
func (c *Client) parsePostedEvent(evt *model.WebSocketEvent) (*model.Post, error) {
	postJSON, ok := evt.GetData()["post"].(string)
	if !ok {
		return nil, fmt.Errorf("posted event missing post data")
	}

	var post model.Post
	if err := json.Unmarshal([]byte(postJSON), &post); err != nil {
		return nil, fmt.Errorf("failed to unmarshal post: %w", err)
	}

	// Echo prevention: skip non-default post types (system messages).
	if post.Type != "" && post.Type != model.PostTypeDefault {
		return nil, nil
	}

	senderName, _ := evt.GetData()["sender_name"].(string)
	senderName = strings.TrimPrefix(senderName, "@")
	if senderName != "" && isRelayUsername(senderName, c.cfg.BotPrefix) {
		c.log.Debug().
			Str("post_id", post.Id).
			Str("username", senderName).
			Msg("Skipping relay username post (echo prevention)")
		return nil, nil
	}

	return &post, nil
}

func isRelayUsername(username, botPrefix string) bool {
	return botPrefix != "" && strings.HasPrefix(username, botPrefix)
}

// postToMessage converts a Mattermost post to a relay message. The post
// itself is kept as Raw so Send can carry its attachments.
func postToMessage(post *model.Post) *relay.Message {
	msg := &relay.Message{
		ID:        post.Id,
		ChannelID: post.ChannelId,
		AuthorID:  post.UserId,
		Text:      post.Message,
		Media:     postMedia(post),
		Buttons:   attachmentButtons(post.Attachments()),
		Raw:       post,
	}
	return msg
}

func postMedia(post *model.Post) []relay.Media {
	if post.Metadata != nil && len(post.Metadata.Files) > 0 {
		media := make([]relay.Media, 0, len(post.Metadata.Files))
		for _, info := range post.Metadata.Files {
			media = append(media, relay.Media{
				ID:       info.Id,
				Name:     info.Name,
				MimeType: info.MimeType,
				Size:     info.Size,
			})
		}
		return media
	}

	if len(post.FileIds) == 0 {
		return nil
	}
	media := make([]relay.Media, 0, len(post.FileIds))
	for _, id := range post.FileIds {
		media = append(media, relay.Media{ID: id})
	}
	return media
}

// attachmentButtons flattens the interactive actions of each message
// attachment into one button row per attachment.
func attachmentButtons(atts []*model.SlackAttachment) [][]relay.Button {
	var rows [][]relay.Button
	for _, att := range atts {
		if att == nil || len(att.Actions) == 0 {
			continue
		}
		row := make([]relay.Button, 0, len(att.Actions))
		for _, action := range att.Actions {
			if action == nil {
				continue
			}
			btn := relay.Button{Text: action.Name, Data: action.Id}
			if action.Integration != nil {
				btn.URL = action.Integration.URL
			}
			row = append(row, btn)
		}
		if len(row) > 0 {
			rows = append(rows, row)
		}
	}
	return rows
}
