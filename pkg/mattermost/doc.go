// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package mattermost is the Mattermost backend of the relay.
//
// [Client] implements [relay.Platform] on top of the Mattermost REST API
// and WebSocket event stream. The relay account is an ordinary user or bot
// whose session token is kept in a session artifact.
//
// # Channel References
//
//   - a 26 character channel ID
//   - "team/channel" or "team:channel" by team and channel name
//   - "~channel" or "channel" by name in the account's first team
//   - "@username" for the direct channel with that user
//
// # Copies
//
// A copy is a new post authored by the relay account. Message text is
// carried as is (Mattermost formatting is markdown), interactive buttons are
// carried through the post's message attachments, and files are downloaded
// and uploaded again into the target channel.
//
// # Echo Prevention
//
// The relay itself drops posts authored by the relay account. The backend
// additionally drops system posts and, when Config.BotPrefix is set, posts
// from usernames starting with that prefix.
package mattermost
