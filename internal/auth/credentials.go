// Package auth stores the CLI session token and turns tokens into actor ids.
package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	credFileName = "credentials.json"
	EnvToken     = "TADA_TOKEN"
)

type TokenInfo struct {
	Token     string     `json:"token"`
	Source    string     `json:"source"`     // "env" | "file"
	CreatedAt time.Time  `json:"created_at"` // when we saved to file
	ExpiresAt *time.Time `json:"expires_at"` // from the token's exp claim, if any
}

// Credentials keeps the token under one directory, ~/.tada by default.
type Credentials struct {
	dir    string
	getenv func(string) string
}

// DefaultDir is ~/.tada.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home: %w", err)
	}
	return filepath.Join(home, ".tada"), nil
}

func NewCredentials(dir string) *Credentials {
	return &Credentials{dir: dir, getenv: os.Getenv}
}

func (c *Credentials) Path() string { return filepath.Join(c.dir, credFileName) }

// Get returns the current token, nil when not logged in.
func (c *Credentials) Get() (*TokenInfo, error) {
	// 1) env override
	if env := strings.TrimSpace(c.getenv(EnvToken)); env != "" {
		return &TokenInfo{Token: stripBearer(env), Source: "env"}, nil
	}

	// 2) file
	b, err := os.ReadFile(c.Path())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	var ti TokenInfo
	if err := json.Unmarshal(b, &ti); err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	ti.Token = stripBearer(ti.Token)
	if ti.Token == "" {
		return nil, nil
	}
	return &ti, nil
}

// Set saves token with owner-only permissions. The expiry is read from the
// token's exp claim when it is a JWT.
func (c *Credentials) Set(token string) (*TokenInfo, error) {
	token = stripBearer(strings.TrimSpace(token))
	if token == "" {
		return nil, fmt.Errorf("empty token")
	}
	if err := os.MkdirAll(c.dir, 0o700); err != nil {
		return nil, fmt.Errorf("mkdir: %w", err)
	}
	ti := TokenInfo{
		Token:     token,
		Source:    "file",
		CreatedAt: time.Now().UTC(),
	}
	if claims, err := Inspect(token); err == nil {
		ti.ExpiresAt = claims.ExpiresAt
	}
	b, err := json.MarshalIndent(ti, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}
	if err := os.WriteFile(c.Path(), b, 0o600); err != nil {
		return nil, fmt.Errorf("write: %w", err)
	}
	return &ti, nil
}

// Delete removes the saved token. Not being logged in is not an error.
func (c *Credentials) Delete() error {
	if err := os.Remove(c.Path()); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("remove: %w", err)
	}
	return nil
}

func stripBearer(s string) string {
	if strings.HasPrefix(strings.ToLower(s), "bearer ") {
		return strings.TrimSpace(s[7:])
	}
	return s
}
