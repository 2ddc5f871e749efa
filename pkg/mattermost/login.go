// Copyright 2024-2026 Aiku AI

package mattermost

import (
	"context"
	"fmt"
	"strings"

	"github.com/mattermost/mattermost/server/public/model"

	"github.com/aiku/chanrelay/pkg/session"
)

// NewAuthenticator returns the login method for cfg: the configured access
// token when there is one, interactive username and password otherwise.
func NewAuthenticator(cfg Config, prompter session.Prompter) session.Authenticator {
	if cfg.AccessToken != "" {
		return &TokenAuthenticator{ServerURL: cfg.ServerURL, Token: cfg.AccessToken}
	}
	return &PasswordAuthenticator{ServerURL: cfg.ServerURL, Prompter: prompter}
}

// TokenAuthenticator logs in with a personal access or bot token.
type TokenAuthenticator struct {
	ServerURL string
	Token     string
}

var _ session.Authenticator = (*TokenAuthenticator)(nil)

func (t *TokenAuthenticator) Authenticate(ctx context.Context) (*session.Session, error) {
	result, err := validateTokenLogin(ctx, t.ServerURL, t.Token)
	if err != nil {
		return nil, err
	}
	return result.session(t.ServerURL, t.Token), nil
}

// PasswordAuthenticator prompts for a username and password and keeps the
// session token the server hands out.
type PasswordAuthenticator struct {
	ServerURL string
	Prompter  session.Prompter
}

var _ session.Authenticator = (*PasswordAuthenticator)(nil)

func (p *PasswordAuthenticator) Authenticate(ctx context.Context) (*session.Session, error) {
	if p.Prompter == nil {
		return nil, fmt.Errorf("no access token configured and no terminal to prompt for a password")
	}
	username, err := p.Prompter.Prompt("Mattermost username: ")
	if err != nil {
		return nil, fmt.Errorf("failed to read username: %w", err)
	}
	password, err := p.Prompter.PromptSecret("Mattermost password: ")
	if err != nil {
		return nil, fmt.Errorf("failed to read password: %w", err)
	}

	client := model.NewAPIv4Client(p.ServerURL)
	if _, _, err = client.Login(ctx, strings.TrimSpace(username), password); err != nil {
		return nil, fmt.Errorf("login failed: %w", err)
	}

	// Use the session token from the successful login.
	result, err := validateTokenLogin(ctx, p.ServerURL, client.AuthToken)
	if err != nil {
		return nil, err
	}
	return result.session(p.ServerURL, client.AuthToken), nil
}

// loginResult holds the validated result of a token login attempt.
type loginResult struct {
	User   *model.User
	TeamID string
}

func (r *loginResult) session(serverURL, token string) *session.Session {
	return &session.Session{
		Platform:  PlatformName,
		ServerURL: serverURL,
		Token:     token,
		UserID:    r.User.Id,
		Username:  r.User.Username,
		TeamID:    r.TeamID,
	}
}

// validateTokenLogin authenticates with the given serverURL and token,
// retrieves the user profile and teams. Returns the validated result or an error.
func validateTokenLogin(ctx context.Context, serverURL, token string) (*loginResult, error) {
	client := model.NewAPIv4Client(serverURL)
	client.SetToken(token)

	me, _, err := client.GetMe(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("authentication failed: %w", err)
	}

	teamID, err := fetchFirstTeamID(ctx, client, me.Id)
	if err != nil {
		return nil, err
	}

	return &loginResult{
		User:   me,
		TeamID: teamID,
	}, nil
}

// fetchFirstTeamID fetches teams for a user and returns the first team's ID,
// or empty string if the user has no teams.
func fetchFirstTeamID(ctx context.Context, client *model.Client4, userID string) (string, error) {
	teams, _, err := client.GetTeamsForUser(ctx, userID, "")
	if err != nil {
		return "", fmt.Errorf("failed to get teams: %w", err)
	}
	if len(teams) > 0 {
		return teams[0].Id, nil
	}
	return "", nil
}
