// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package mattermost

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/mattermost/mattermost/server/public/model"
	"github.com/rs/zerolog"

	"github.com/aiku/chanrelay/pkg/relay"
)

// endpointCall records which API endpoints were hit during a test.
type endpointCall struct {
	Method string
	Path   string
	Query  string
	Body   string
}

// fakeMM is a test helper that wraps an httptest.Server simulating the
// Mattermost API. It records calls and provides canned responses.
type fakeMM struct {
	Server *httptest.Server

	mu    sync.Mutex
	calls []endpointCall

	// Users maps user ID to model.User for GetMe and username lookups.
	Users map[string]*model.User
	// TokenToUser maps bearer tokens to user IDs for GetMe auth.
	TokenToUser map[string]string
	// Passwords maps usernames to passwords for Login.
	Passwords map[string]string
	// Teams maps user ID to team list.
	Teams map[string][]*model.Team
	// Channels maps channel ID to model.Channel. Name lookups search it by
	// TeamId and Name.
	Channels map[string]*model.Channel
	// Files maps file ID to model.FileInfo.
	Files map[string]*model.FileInfo
	// FileData maps file ID to its content.
	FileData map[string][]byte
	// FailEndpoints causes specific path prefixes to return 500.
	FailEndpoints map[string]bool

	// RateLimitPosts makes the next n post creations return 429 with
	// RateLimitHeader set.
	RateLimitPosts  int
	RateLimitHeader http.Header
}

func newFakeMM() *fakeMM {
	f := &fakeMM{
		Users:         make(map[string]*model.User),
		TokenToUser:   make(map[string]string),
		Passwords:     make(map[string]string),
		Teams:         make(map[string][]*model.Team),
		Channels:      make(map[string]*model.Channel),
		Files:         make(map[string]*model.FileInfo),
		FileData:      make(map[string][]byte),
		FailEndpoints: make(map[string]bool),
	}
	f.Server = httptest.NewServer(http.HandlerFunc(f.handler))
	return f
}

func (f *fakeMM) Close() {
	f.Server.Close()
}

func (f *fakeMM) record(r *http.Request, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, endpointCall{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.RawQuery,
		Body:   body,
	})
}

func (f *fakeMM) Calls() []endpointCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]endpointCall, len(f.calls))
	copy(cp, f.calls)
	return cp
}

func (f *fakeMM) CalledPath(path string) bool {
	for _, c := range f.Calls() {
		if strings.Contains(c.Path, path) {
			return true
		}
	}
	return false
}

// CreatedPosts decodes every successful post creation request.
func (f *fakeMM) CreatedPosts() []*model.Post {
	var posts []*model.Post
	for _, c := range f.Calls() {
		if c.Method != http.MethodPost || c.Path != "/api/v4/posts" {
			continue
		}
		var post model.Post
		if err := json.Unmarshal([]byte(c.Body), &post); err == nil {
			posts = append(posts, &post)
		}
	}
	return posts
}

func (f *fakeMM) addUser(token string, user *model.User) {
	f.Users[user.Id] = user
	if token != "" {
		f.TokenToUser[token] = user.Id
	}
}

func (f *fakeMM) resolveToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	f.mu.Lock()
	defer f.mu.Unlock()
	for tok, uid := range f.TokenToUser {
		if auth == "BEARER "+tok || auth == "Bearer "+tok {
			return uid
		}
	}
	return ""
}

func (f *fakeMM) findChannel(teamID, name string) *model.Channel {
	for _, ch := range f.Channels {
		if ch.TeamId == teamID && ch.Name == name {
			return ch
		}
	}
	return nil
}

func (f *fakeMM) findTeamByName(name string) *model.Team {
	for _, teams := range f.Teams {
		for _, team := range teams {
			if team.Name == name {
				return team
			}
		}
	}
	return nil
}

func (f *fakeMM) findUserByName(name string) *model.User {
	for _, u := range f.Users {
		if u.Username == name {
			return u
		}
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func notFound(w http.ResponseWriter, what string) {
	writeJSON(w, http.StatusNotFound, map[string]any{
		"id":          "app.not_found",
		"message":     "not found: " + what,
		"status_code": http.StatusNotFound,
	})
}

func (f *fakeMM) handler(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	path := r.URL.Path

	// Check if this endpoint should fail.
	for prefix := range f.FailEndpoints {
		if strings.Contains(path, prefix) {
			f.record(r, string(body))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "fake error"})
			return
		}
	}

	if r.Method == http.MethodPost && path == "/api/v4/posts" {
		f.mu.Lock()
		limited := f.RateLimitPosts > 0
		if limited {
			f.RateLimitPosts--
		}
		f.mu.Unlock()
		if limited {
			for k, vs := range f.RateLimitHeader {
				for _, v := range vs {
					w.Header().Add(k, v)
				}
			}
			writeJSON(w, http.StatusTooManyRequests, map[string]any{
				"id":          "api.context.rate_limit",
				"message":     "too many requests",
				"status_code": http.StatusTooManyRequests,
			})
			return
		}
	}
	f.record(r, string(body))

	parts := strings.Split(path, "/")

	switch {
	// GET /api/v4/users/me
	case r.Method == http.MethodGet && path == "/api/v4/users/me":
		uid := f.resolveToken(r)
		if uid == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "unauthorized"})
			return
		}
		if u, ok := f.Users[uid]; ok {
			writeJSON(w, http.StatusOK, u)
			return
		}
		notFound(w, path)

	// POST /api/v4/users/login
	case r.Method == http.MethodPost && path == "/api/v4/users/login":
		var req map[string]string
		_ = json.Unmarshal(body, &req)
		u := f.findUserByName(req["login_id"])
		if u == nil || f.Passwords[u.Username] != req["password"] {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "invalid credentials"})
			return
		}
		token := "session-" + u.Id
		f.mu.Lock()
		f.TokenToUser[token] = u.Id
		f.mu.Unlock()
		w.Header().Set("Token", token)
		writeJSON(w, http.StatusOK, u)

	// GET /api/v4/users/username/{username}
	case r.Method == http.MethodGet && strings.HasPrefix(path, "/api/v4/users/username/"):
		if u := f.findUserByName(parts[5]); u != nil {
			writeJSON(w, http.StatusOK, u)
			return
		}
		notFound(w, path)

	// GET /api/v4/users/{user_id}/teams
	case r.Method == http.MethodGet && strings.HasPrefix(path, "/api/v4/users/") && strings.HasSuffix(path, "/teams"):
		if teams, ok := f.Teams[parts[4]]; ok {
			writeJSON(w, http.StatusOK, teams)
			return
		}
		writeJSON(w, http.StatusOK, []*model.Team{})

	// POST /api/v4/channels/direct
	case r.Method == http.MethodPost && path == "/api/v4/channels/direct":
		var ids []string
		_ = json.Unmarshal(body, &ids)
		if len(ids) != 2 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"message": "bad request"})
			return
		}
		ch := &model.Channel{
			Id:   "dm-" + ids[1],
			Type: model.ChannelTypeDirect,
			Name: model.GetDMNameFromIds(ids[0], ids[1]),
		}
		writeJSON(w, http.StatusCreated, ch)

	// GET /api/v4/channels/{channel_id}
	case r.Method == http.MethodGet && strings.HasPrefix(path, "/api/v4/channels/") && len(parts) == 5:
		if ch, ok := f.Channels[parts[4]]; ok {
			writeJSON(w, http.StatusOK, ch)
			return
		}
		notFound(w, path)

	// GET /api/v4/teams/name/{team_name}/channels/name/{channel_name}
	case r.Method == http.MethodGet && strings.HasPrefix(path, "/api/v4/teams/name/") && len(parts) == 9:
		if team := f.findTeamByName(parts[5]); team != nil {
			if ch := f.findChannel(team.Id, parts[8]); ch != nil {
				writeJSON(w, http.StatusOK, ch)
				return
			}
		}
		notFound(w, path)

	// GET /api/v4/teams/{team_id}/channels/name/{channel_name}
	case r.Method == http.MethodGet && strings.HasPrefix(path, "/api/v4/teams/") && len(parts) == 8 && parts[6] == "name":
		if ch := f.findChannel(parts[4], parts[7]); ch != nil {
			writeJSON(w, http.StatusOK, ch)
			return
		}
		notFound(w, path)

	// POST /api/v4/posts
	case r.Method == http.MethodPost && path == "/api/v4/posts":
		var post model.Post
		_ = json.Unmarshal(body, &post)
		post.Id = "created-post-id"
		writeJSON(w, http.StatusCreated, &post)

	// GET /api/v4/files/{file_id}/info
	case r.Method == http.MethodGet && strings.HasPrefix(path, "/api/v4/files/") && strings.HasSuffix(path, "/info"):
		if fi, ok := f.Files[parts[4]]; ok {
			writeJSON(w, http.StatusOK, fi)
			return
		}
		notFound(w, path)

	// GET /api/v4/files/{file_id}
	case r.Method == http.MethodGet && strings.HasPrefix(path, "/api/v4/files/") && len(parts) == 5:
		if data, ok := f.FileData[parts[4]]; ok {
			_, _ = w.Write(data)
			return
		}
		notFound(w, path)

	// POST /api/v4/files (upload)
	case r.Method == http.MethodPost && path == "/api/v4/files":
		writeJSON(w, http.StatusCreated, &model.FileUploadResponse{
			FileInfos: []*model.FileInfo{{Id: "uploaded-file-id", Name: "upload"}},
		})

	default:
		notFound(w, path)
	}
}

// newWebSocketEvent creates a model.WebSocketEvent for testing handlers.
func newWebSocketEvent(eventType model.WebsocketEventType, channelID string, data map[string]any) *model.WebSocketEvent {
	evt := model.NewWebSocketEvent(eventType, "", channelID, "", nil, "")
	return evt.SetData(data)
}

// postedEvent builds a posted event carrying post as JSON.
func postedEvent(post *model.Post, senderName string) *model.WebSocketEvent {
	postJSON, _ := json.Marshal(post)
	return newWebSocketEvent(model.WebsocketEventPosted, post.ChannelId, map[string]any{
		"post":        string(postJSON),
		"sender_name": senderName,
	})
}

// newTestClient creates a Client logged in to serverURL as my-user-id in
// team my-team-id.
func newTestClient(serverURL string) *Client {
	client := model.NewAPIv4Client(serverURL)
	client.SetToken("test-token")

	return &Client{
		client:         client,
		userID:         "my-user-id",
		teamID:         "my-team-id",
		serverURL:      serverURL,
		reconnectDelay: time.Millisecond,
		log:            zerolog.Nop(),
	}
}

// collectHandler returns a handler that records every delivered message.
func collectHandler() (relay.MessageHandler, func() []*relay.Message) {
	var mu sync.Mutex
	var got []*relay.Message
	handler := func(msg *relay.Message) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, msg)
	}
	return handler, func() []*relay.Message {
		mu.Lock()
		defer mu.Unlock()
		return append([]*relay.Message(nil), got...)
	}
}
