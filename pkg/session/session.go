// Copyright 2024-2026 Aiku AI

// Package session persists the relay account's authenticated session so
// that the relay can reconnect without an interactive login.
package session

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// FileExtension is appended to the session identifier to form the artifact
// file name.
const FileExtension = ".session"

// ErrNotFound is returned by Load when no artifact exists yet.
var ErrNotFound = errors.New("session not found")

// Session is the persisted authentication state of the relay account.
type Session struct {
	Platform  string    `yaml:"platform"`
	ServerURL string    `yaml:"server_url,omitempty"`
	Token     string    `yaml:"token"`
	UserID    string    `yaml:"user_id"`
	Username  string    `yaml:"username,omitempty"`
	TeamID    string    `yaml:"team_id,omitempty"`
	CreatedAt time.Time `yaml:"created_at"`
}

// Authenticator performs a platform login and returns the resulting session.
type Authenticator interface {
	Authenticate(ctx context.Context) (*Session, error)
}

// Prompter asks the operator for input during an interactive login.
type Prompter interface {
	Prompt(label string) (string, error)
	PromptSecret(label string) (string, error)
}

// Store reads and writes the artifact of one session identifier.
type Store struct {
	dir  string
	name string
}

// NewStore returns a store for session name inside dir.
func NewStore(dir, name string) *Store {
	if dir == "" {
		dir = "."
	}
	return &Store{dir: dir, name: name}
}

// Path returns the artifact location.
func (s *Store) Path() string {
	return filepath.Join(s.dir, s.name+FileExtension)
}

// Exists reports whether an artifact is present.
func (s *Store) Exists() (bool, error) {
	_, err := os.Stat(s.Path())
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("failed to stat session %s: %w", s.Path(), err)
	}
}

// Load reads the artifact. It returns ErrNotFound when there is none.
func (s *Store) Load() (*Session, error) {
	data, err := os.ReadFile(s.Path())
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to read session %s: %w", s.Path(), err)
	}
	var sess Session
	if err := yaml.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("failed to parse session %s: %w", s.Path(), err)
	}
	return &sess, nil
}

// Save writes the artifact atomically with owner-only permissions.
func (s *Store) Save(sess *Session) error {
	data, err := yaml.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}
	tmp, err := os.CreateTemp(s.dir, s.name+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create session file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to set session file mode: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close session file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.Path()); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}

// Bootstrap makes sure an artifact exists. If one is already present it does
// nothing; otherwise it runs auth and stores the result. It reports whether a
// new session was created.
func Bootstrap(ctx context.Context, store *Store, auth Authenticator, log zerolog.Logger) (bool, error) {
	exists, err := store.Exists()
	if err != nil {
		return false, err
	}
	if exists {
		log.Debug().Str("path", store.Path()).Msg("Session already exists")
		return false, nil
	}

	log.Info().Str("path", store.Path()).Msg("No session found, logging in")
	sess, err := auth.Authenticate(ctx)
	if err != nil {
		return false, fmt.Errorf("login failed: %w", err)
	}
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = time.Now().UTC()
	}
	if err := store.Save(sess); err != nil {
		return false, err
	}
	log.Info().
		Str("path", store.Path()).
		Str("user_id", sess.UserID).
		Str("username", sess.Username).
		Msg("Session created")
	return true, nil
}
