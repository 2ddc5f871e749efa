// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package relay copies new messages from a set of source channels to a set
// of target channels on a single chat platform.
//
// # Core Types
//
// [Relay] owns the event pipeline. It resolves its own identity and the
// configured channel references once at startup ([Relay.Prepare]), then
// listens for new messages ([Relay.Run]) and copies each qualifying message
// to every target in configured order ([Relay.CopyMessage]).
//
// [Platform] is the boundary to the chat network. Backends live in the
// mattermost and telegram packages.
//
// # Echo Prevention
//
// Messages authored by the relay identity are never copied. The identity is
// fetched once and carried in an immutable [Routing] value, so a copy landing
// in a channel that is also a source does not loop back.
//
// # Rate Limits
//
// A [RateLimitError] from the platform suspends the copy for the mandated
// wait plus one second and retries the same target. Retries are capped by
// Config.MaxRateLimitRetries; when exhausted the target is skipped.
package relay
