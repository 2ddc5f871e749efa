// Copyright 2024-2026 Aiku AI

package mattermost

import (
	"strings"

	"github.com/mattermost/mattermost/server/public/model"

	"github.com/aiku/chanrelay/pkg/relay"
)

// refKind is the addressing form of a channel reference.
type refKind int

const (
	refByName refKind = iota
	refByID
	refByTeamName
	refDirect
)

// parsedRef is a channel reference split into its parts.
type parsedRef struct {
	kind refKind
	team string
	name string
}

// parseRef classifies a reference. IDs are only a guess: a 26 character
// lowercase name looks the same, so callers fall back to a name lookup.
func parseRef(ref relay.ChannelRef) parsedRef {
	raw := strings.TrimSpace(string(ref))
	switch {
	case strings.HasPrefix(raw, "@"):
		return parsedRef{kind: refDirect, name: strings.TrimPrefix(raw, "@")}
	case strings.HasPrefix(raw, "~"):
		return parsedRef{kind: refByName, name: strings.TrimPrefix(raw, "~")}
	case model.IsValidId(raw):
		return parsedRef{kind: refByID, name: raw}
	}
	if team, name, ok := cutTeam(raw); ok {
		return parsedRef{kind: refByTeamName, team: team, name: strings.TrimPrefix(name, "~")}
	}
	return parsedRef{kind: refByName, name: raw}
}

func cutTeam(raw string) (team, name string, ok bool) {
	for _, sep := range []string{"/", ":"} {
		if team, name, ok := strings.Cut(raw, sep); ok && team != "" && name != "" {
			return team, name, true
		}
	}
	return "", "", false
}

// channelDisplayName returns a human readable name for logs.
func channelDisplayName(ch *model.Channel) string {
	if ch.DisplayName != "" {
		return ch.DisplayName
	}
	return ch.Name
}
