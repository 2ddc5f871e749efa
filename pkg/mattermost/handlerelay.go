// Copyright 2024-2026 Aiku AI

package mattermost

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/mattermost/mattermost/server/public/model"

	"github.com/aiku/chanrelay/pkg/relay"
)

const defaultRateLimitWait = time.Second

// ErrEmptyMessage is returned when a message has nothing Mattermost would
// accept as a post.
var ErrEmptyMessage = errors.New("message has no text, files or attachments")

// Send posts a copy of msg into target as the relay account. The dedupe key
// becomes the post's pending ID so a retried request is not posted twice.
func (c *Client) Send(ctx context.Context, target relay.Channel, msg *relay.Message, opts relay.SendOptions) error {
	post := &model.Post{
		ChannelId:     target.ID,
		Message:       msg.Text,
		PendingPostId: opts.DedupeKey,
	}

	var atts []*model.SlackAttachment
	if src, ok := msg.Raw.(*model.Post); ok {
		atts = src.Attachments()
	}
	if len(atts) > 0 {
		model.ParseSlackAttachment(post, atts)
	} else if !msg.HasContent() {
		return ErrEmptyMessage
	}

	for _, media := range msg.Media {
		fileID, ok := c.uploadedFile(opts.DedupeKey, media.ID)
		if !ok {
			var err error
			fileID, err = c.copyFile(ctx, media, target.ID)
			if err != nil {
				c.keepUploadsOnRateLimit(opts.DedupeKey, err)
				return err
			}
			c.rememberUpload(opts.DedupeKey, media.ID, fileID)
		}
		post.FileIds = append(post.FileIds, fileID)
	}

	created, resp, err := c.client.CreatePost(ctx, post)
	if err != nil {
		err = classifyError(resp, fmt.Errorf("failed to create post: %w", err))
		c.keepUploadsOnRateLimit(opts.DedupeKey, err)
		return err
	}
	c.forgetUploads(opts.DedupeKey)

	c.log.Trace().
		Str("post_id", created.Id).
		Str("channel_id", target.ID).
		Msg("Created post")
	return nil
}

// copyFile downloads a file from its source channel and uploads it again
// into channelID, returning the new file ID.
func (c *Client) copyFile(ctx context.Context, media relay.Media, channelID string) (string, error) {
	name := media.Name
	if name == "" {
		info, resp, err := c.client.GetFileInfo(ctx, media.ID)
		if err != nil {
			return "", classifyError(resp, fmt.Errorf("failed to get file info %s: %w", media.ID, err))
		}
		name = info.Name
	}
	if name == "" {
		name = "upload"
	}

	data, resp, err := c.client.GetFile(ctx, media.ID)
	if err != nil {
		return "", classifyError(resp, fmt.Errorf("failed to download file %s: %w", media.ID, err))
	}

	uploaded, resp, err := c.client.UploadFile(ctx, data, channelID, name)
	if err != nil {
		return "", classifyError(resp, fmt.Errorf("failed to upload file: %w", err))
	}
	if len(uploaded.FileInfos) == 0 {
		return "", fmt.Errorf("no file info returned from upload")
	}
	return uploaded.FileInfos[0].Id, nil
}

// uploadedFile returns the file ID a previous attempt of the same copy
// already uploaded for the source file.
func (c *Client) uploadedFile(key, sourceID string) (string, bool) {
	if key == "" {
		return "", false
	}
	c.uploadsLock.Lock()
	defer c.uploadsLock.Unlock()
	fileID, ok := c.uploads[key][sourceID]
	return fileID, ok
}

func (c *Client) rememberUpload(key, sourceID, fileID string) {
	if key == "" {
		return
	}
	c.uploadsLock.Lock()
	defer c.uploadsLock.Unlock()
	if c.uploads == nil {
		c.uploads = make(map[string]map[string]string)
	}
	if c.uploads[key] == nil {
		c.uploads[key] = make(map[string]string)
	}
	c.uploads[key][sourceID] = fileID
}

func (c *Client) forgetUploads(key string) {
	c.uploadsLock.Lock()
	defer c.uploadsLock.Unlock()
	delete(c.uploads, key)
}

// keepUploadsOnRateLimit drops the remembered uploads unless err means the
// same copy will be retried.
func (c *Client) keepUploadsOnRateLimit(key string, err error) {
	if _, ok := relay.AsRateLimit(err); !ok {
		c.forgetUploads(key)
	}
}

// classifyError turns an HTTP 429 into a relay.RateLimitError. Other errors
// are returned unchanged.
func classifyError(resp *model.Response, err error) error {
	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	if status == 0 {
		var appErr *model.AppError
		if errors.As(err, &appErr) {
			status = appErr.StatusCode
		}
	}
	if status != http.StatusTooManyRequests {
		return err
	}
	var header http.Header
	if resp != nil {
		header = resp.Header
	}
	return &relay.RateLimitError{Wait: rateLimitWait(header, time.Now()), Err: err}
}

// rateLimitWait reads the server's requested wait from Retry-After (seconds
// or an HTTP date) or X-Ratelimit-Reset (seconds until reset).
func rateLimitWait(header http.Header, now time.Time) time.Duration {
	if v := header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
			return time.Duration(secs) * time.Second
		}
		if at, err := http.ParseTime(v); err == nil {
			if d := at.Sub(now); d > 0 {
				return d
			}
			return 0
		}
	}
	if v := header.Get("X-Ratelimit-Reset"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultRateLimitWait
}
