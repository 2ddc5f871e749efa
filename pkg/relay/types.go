// Copyright 2024-2026 Aiku AI

package relay

import (
	"context"
	"strconv"
	"strings"
)

// ChannelRef is a configured source or target reference. It is either a
// handle such as "@news", "~town-square" or "team/channel", or a platform
// identifier.
type ChannelRef string

// ParseChannelRefs converts raw comma-split values into references,
// dropping blanks and surrounding whitespace.
func ParseChannelRefs(raw []string) []ChannelRef {
	refs := make([]ChannelRef, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		refs = append(refs, ChannelRef(r))
	}
	return refs
}

// Numeric returns the reference as an integer identifier, if it is one.
func (r ChannelRef) Numeric() (int64, bool) {
	n, err := strconv.ParseInt(string(r), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// IsHandle reports whether the reference is written as an "@" handle.
func (r ChannelRef) IsHandle() bool {
	return strings.HasPrefix(string(r), "@")
}

// Handle returns the reference without its leading "@" or "~" marker.
func (r ChannelRef) Handle() string {
	return strings.TrimLeft(string(r), "@~")
}

func (r ChannelRef) String() string {
	return string(r)
}

// Channel is a resolved channel. Native carries the backend's own handle and
// is opaque to the relay.
type Channel struct {
	ID     string
	Name   string
	Ref    ChannelRef
	Native any
}

func (c Channel) String() string {
	if c.Name != "" && c.Name != c.ID {
		return c.Name + " (" + c.ID + ")"
	}
	return c.ID
}

// Media is a file attached to a message.
type Media struct {
	ID       string
	Name     string
	MimeType string
	Size     int64
}

// Entity is a rich-text span: a style, a mention or a link.
type Entity struct {
	Type   string
	Offset int
	Length int
	URL    string
}

// Button is an interactive button. Either URL or Data is set.
type Button struct {
	Text string
	URL  string
	Data string
}

// Message is an inbound message as seen by the relay.
type Message struct {
	ID        string
	ChannelID string
	AuthorID  string

	Text     string
	Media    []Media
	Entities []Entity
	Buttons  [][]Button

	// Raw is the backend's own message value, used to reproduce details the
	// fields above do not capture.
	Raw any
}

// HasContent reports whether the message has text or media.
func (m *Message) HasContent() bool {
	return m.Text != "" || len(m.Media) > 0
}

// SendOptions modify a single send request.
type SendOptions struct {
	// DedupeKey is identical across retries of the same copy.
	DedupeKey string
}

// MessageHandler receives inbound messages from a Platform. Implementations
// must not block for long.
type MessageHandler func(msg *Message)

// Platform is the chat network as seen by the relay.
type Platform interface {
	// Self returns the relay account's own user identifier.
	Self(ctx context.Context) (string, error)
	// Resolve maps a reference to a channel, or fails with *ResolutionError.
	Resolve(ctx context.Context, ref ChannelRef) (Channel, error)
	// Send posts a copy of msg to target. A platform backpressure signal is
	// returned as *RateLimitError.
	Send(ctx context.Context, target Channel, msg *Message, opts SendOptions) error
	// Listen delivers new messages to handler until ctx is cancelled or the
	// connection is lost for good.
	Listen(ctx context.Context, handler MessageHandler) error
}
