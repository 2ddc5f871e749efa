// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultDelay is the pause between two sends of the same message.
	DefaultDelay = 500 * time.Millisecond
	// DefaultMaxRateLimitRetries caps retries of one target after rate limits.
	DefaultMaxRateLimitRetries = 3
	// RateLimitPadding is added on top of the wait the platform asks for.
	RateLimitPadding = time.Second

	resolveConcurrency = 4
)

// Config holds the relay settings. It is read-only once the relay starts.
type Config struct {
	Sources []ChannelRef
	Targets []ChannelRef
	Delay   time.Duration
	// MaxRateLimitRetries is the number of retries allowed per target while
	// the platform keeps signalling rate limits. Values below 1 mean
	// DefaultMaxRateLimitRetries.
	MaxRateLimitRetries int
}

// Routing is the immutable result of startup resolution. It is shared by
// all concurrently running message handlers.
type Routing struct {
	SelfID  string
	Sources []Channel
	Targets []Channel

	sourceIDs map[string]struct{}
}

// NewRouting builds a Routing from already resolved channels.
func NewRouting(selfID string, sources, targets []Channel) *Routing {
	ids := make(map[string]struct{}, len(sources))
	for _, ch := range sources {
		ids[ch.ID] = struct{}{}
	}
	return &Routing{
		SelfID:    selfID,
		Sources:   sources,
		Targets:   targets,
		sourceIDs: ids,
	}
}

// IsSource reports whether channelID is one of the resolved sources.
func (rt *Routing) IsSource(channelID string) bool {
	_, ok := rt.sourceIDs[channelID]
	return ok
}

// SleepFunc suspends for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Option customizes a Relay.
type Option func(*Relay)

// WithSleep replaces the timer used for inter-send delays and backoff.
func WithSleep(fn SleepFunc) Option {
	return func(r *Relay) { r.sleep = fn }
}

// WithKeyFunc replaces the generator for correlation and dedupe keys.
func WithKeyFunc(fn func() string) Option {
	return func(r *Relay) { r.newKey = fn }
}

// Relay copies messages from source channels to target channels.
type Relay struct {
	platform Platform
	cfg      Config
	log      zerolog.Logger

	sleep    SleepFunc
	newKey   func() string
	inflight sync.WaitGroup
}

// New creates a relay on top of platform.
func New(platform Platform, cfg Config, log zerolog.Logger, opts ...Option) *Relay {
	if cfg.MaxRateLimitRetries < 1 {
		cfg.MaxRateLimitRetries = DefaultMaxRateLimitRetries
	}
	if cfg.Delay < 0 {
		cfg.Delay = 0
	}
	r := &Relay{
		platform: platform,
		cfg:      cfg,
		log:      log.With().Str("component", "relay").Logger(),
		sleep:    sleepContext,
		newKey:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run resolves the configured channels and listens until ctx is cancelled
// or the platform disconnects. It waits for in-flight copies to finish.
func (r *Relay) Run(ctx context.Context) error {
	rt, err := r.Prepare(ctx)
	if err != nil {
		return err
	}
	return r.Listen(ctx, rt)
}

// Prepare fetches the relay identity and resolves all references. A
// reference that cannot be resolved is logged and left out.
func (r *Relay) Prepare(ctx context.Context) (*Routing, error) {
	selfID, err := r.platform.Self(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch own identity: %w", err)
	}
	r.log.Info().Str("user_id", selfID).Msg("Authenticated")

	sources, err := r.resolveAll(ctx, "source", r.cfg.Sources)
	if err != nil {
		return nil, err
	}
	targets, err := r.resolveAll(ctx, "target", r.cfg.Targets)
	if err != nil {
		return nil, err
	}

	r.log.Info().
		Stringers("sources", channelStringers(sources)).
		Stringers("targets", channelStringers(targets)).
		Dur("delay", r.cfg.Delay).
		Msg("Resolved channels")
	if len(sources) == 0 || len(targets) == 0 {
		r.log.Warn().
			Int("sources", len(sources)).
			Int("targets", len(targets)).
			Msg("Nothing will be relayed with the current channel set")
	}

	return NewRouting(selfID, sources, targets), nil
}

func (r *Relay) resolveAll(ctx context.Context, kind string, refs []ChannelRef) ([]Channel, error) {
	resolved := make([]*Channel, len(refs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(resolveConcurrency)
	for i, ref := range refs {
		g.Go(func() error {
			ch, err := r.platform.Resolve(gctx, ref)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
				r.log.Warn().Err(err).
					Str("kind", kind).
					Str("ref", ref.String()).
					Msg("Failed to resolve channel, skipping")
				return nil
			}
			resolved[i] = &ch
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("resolving %s channels: %w", kind, err)
	}

	channels := make([]Channel, 0, len(refs))
	for _, ch := range resolved {
		if ch != nil {
			channels = append(channels, *ch)
		}
	}
	return channels, nil
}

// Listen hands every inbound message to its own goroutine. Copies of one
// message stay sequential; copies of different messages may interleave.
func (r *Relay) Listen(ctx context.Context, rt *Routing) error {
	r.log.Info().Msg("Listening for new messages")
	err := r.platform.Listen(ctx, func(msg *Message) {
		r.inflight.Add(1)
		go func() {
			defer r.inflight.Done()
			r.HandleMessage(ctx, rt, msg)
		}()
	})
	r.inflight.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("listener stopped: %w", err)
	}
	r.log.Info().Msg("Listener stopped")
	return nil
}

// HandleMessage runs the copy pipeline for one inbound message and returns
// the number of targets that received it.
func (r *Relay) HandleMessage(ctx context.Context, rt *Routing, msg *Message) int {
	if msg == nil {
		return 0
	}
	if msg.AuthorID != "" && msg.AuthorID == rt.SelfID {
		return 0
	}
	if !rt.IsSource(msg.ChannelID) {
		return 0
	}

	log := r.log.With().
		Str("relay_id", r.newKey()).
		Str("message_id", msg.ID).
		Str("source_id", msg.ChannelID).
		Logger()
	log.Info().Int("targets", len(rt.Targets)).Msg("New message from source")

	delivered := 0
	for _, target := range rt.Targets {
		if err := r.copyMessage(ctx, log, target, msg); err == nil {
			delivered++
		}
		if err := r.sleep(ctx, r.cfg.Delay); err != nil {
			log.Debug().Err(err).Msg("Interrupted between targets")
			break
		}
	}
	return delivered
}

// CopyMessage sends a copy of msg to target, honoring rate limits. Errors
// are logged and returned; the caller is expected to move on.
func (r *Relay) CopyMessage(ctx context.Context, target Channel, msg *Message) error {
	return r.copyMessage(ctx, r.log, target, msg)
}

func (r *Relay) copyMessage(ctx context.Context, log zerolog.Logger, target Channel, msg *Message) error {
	opts := SendOptions{DedupeKey: r.newKey()}
	retries := 0
	for {
		err := r.platform.Send(ctx, target, msg, opts)
		if err == nil {
			log.Info().
				Str("message_id", msg.ID).
				Str("target", target.String()).
				Int("retries", retries).
				Msg("Copied message")
			return nil
		}

		rl, ok := AsRateLimit(err)
		if !ok {
			log.Error().Err(err).
				Str("message_id", msg.ID).
				Str("target", target.String()).
				Msg("Failed to copy message")
			return err
		}
		if retries >= r.cfg.MaxRateLimitRetries {
			log.Error().Err(err).
				Str("message_id", msg.ID).
				Str("target", target.String()).
				Int("retries", retries).
				Msg("Failed to copy message, rate limit retries exhausted")
			return err
		}

		wait := rl.Wait + RateLimitPadding
		log.Warn().
			Str("target", target.String()).
			Dur("wait", wait).
			Int("attempt", retries+1).
			Msg("Rate limited, sleeping before retry")
		if err := r.sleep(ctx, wait); err != nil {
			log.Error().Err(err).
				Str("message_id", msg.ID).
				Str("target", target.String()).
				Msg("Failed to copy message, interrupted during backoff")
			return err
		}
		retries++
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func channelStringers(channels []Channel) []fmt.Stringer {
	out := make([]fmt.Stringer, len(channels))
	for i, ch := range channels {
		out[i] = ch
	}
	return out
}
