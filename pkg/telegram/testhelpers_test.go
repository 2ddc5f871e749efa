// Copyright 2024-2026 Aiku AI

package telegram

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

const testToken = "123:secret"

// apiCall records one Bot API request.
type apiCall struct {
	Method string
	Params url.Values
}

// fakeBotAPI is an httptest.Server speaking the Bot API for a single bot.
type fakeBotAPI struct {
	Server *httptest.Server

	mu    sync.Mutex
	calls []apiCall

	// Chats maps a chat_id parameter ("-100123" or "@news") to a chat object.
	Chats map[string]map[string]any
	// Updates are returned by getUpdates, honouring the offset parameter.
	Updates []map[string]any
	// RateLimitCopies makes the next n copyMessage calls fail with 429.
	RateLimitCopies int
	RetryAfter      int
	// FailCopies makes copyMessage fail with a 400.
	FailCopies bool
}

func newFakeBotAPI(t *testing.T) *fakeBotAPI {
	t.Helper()
	f := &fakeBotAPI{Chats: make(map[string]map[string]any)}
	f.Server = httptest.NewServer(http.HandlerFunc(f.handler))
	t.Cleanup(f.Server.Close)
	return f
}

// Endpoint is the API endpoint template for tgbotapi.
func (f *fakeBotAPI) Endpoint() string {
	return f.Server.URL + "/bot%s/%s"
}

func (f *fakeBotAPI) Calls(method string) []apiCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []apiCall
	for _, c := range f.calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

func reply(w http.ResponseWriter, result any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "result": result})
}

func replyError(w http.ResponseWriter, code int, description string, params map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	body := map[string]any{"ok": false, "error_code": code, "description": description}
	if params != nil {
		body["parameters"] = params
	}
	_ = json.NewEncoder(w).Encode(body)
}

func (f *fakeBotAPI) handler(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	token, method, _ := strings.Cut(strings.TrimPrefix(r.URL.Path, "/bot"), "/")

	f.mu.Lock()
	f.calls = append(f.calls, apiCall{Method: method, Params: r.Form})
	f.mu.Unlock()

	if token != testToken {
		replyError(w, http.StatusUnauthorized, "Unauthorized", nil)
		return
	}

	switch method {
	case "getMe":
		reply(w, map[string]any{"id": 42, "is_bot": true, "first_name": "Relay", "username": "relay_bot"})

	case "getChat":
		if chat, ok := f.Chats[r.Form.Get("chat_id")]; ok {
			reply(w, chat)
			return
		}
		replyError(w, http.StatusBadRequest, "Bad Request: chat not found", nil)

	case "copyMessage":
		f.mu.Lock()
		limited := f.RateLimitCopies > 0
		if limited {
			f.RateLimitCopies--
		}
		fail := f.FailCopies
		f.mu.Unlock()
		switch {
		case limited:
			replyError(w, http.StatusTooManyRequests,
				"Too Many Requests: retry after "+strconv.Itoa(f.RetryAfter),
				map[string]any{"retry_after": f.RetryAfter})
		case fail:
			replyError(w, http.StatusBadRequest, "Bad Request: message to copy not found", nil)
		default:
			reply(w, map[string]any{"message_id": 1000})
		}

	case "getUpdates":
		offset, _ := strconv.Atoi(r.Form.Get("offset"))
		var pending []map[string]any
		f.mu.Lock()
		for _, u := range f.Updates {
			if id, _ := u["update_id"].(int); id >= offset {
				pending = append(pending, u)
			}
		}
		f.mu.Unlock()
		if len(pending) == 0 {
			time.Sleep(10 * time.Millisecond)
			pending = []map[string]any{}
		}
		reply(w, pending)

	default:
		replyError(w, http.StatusNotFound, "Not Found", nil)
	}
}

func newTestClient(t *testing.T, f *fakeBotAPI) *Client {
	t.Helper()
	c, err := NewClient(Config{BotToken: testToken, APIEndpoint: f.Endpoint()}, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	c.pollTimeout = 0
	return c
}
