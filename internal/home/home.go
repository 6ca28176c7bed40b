package home

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	// DefaultDirName is the default name for the driftpost home directory.
	DefaultDirName = ".driftpost"

	// ConfigFileName is the default config file name.
	ConfigFileName = "config.yaml"

	// TokenFileName holds the persisted social access token.
	TokenFileName = "token.json"

	// ExportsDirName is the subdirectory for saved images and post drafts.
	ExportsDirName = "exports"
)

// ErrNoToken is returned when no token has been saved yet.
var ErrNoToken = errors.New("no saved token")

// Dir represents the driftpost home directory structure.
type Dir struct {
	path string
}

// New creates a new Dir with the given path.
// If path is empty, uses the default (~/.driftpost).
func New(path string) (*Dir, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		path = filepath.Join(home, DefaultDirName)
	}

	return &Dir{path: path}, nil
}

// Path returns the root path of the home directory.
func (d *Dir) Path() string {
	return d.path
}

// ConfigPath returns the path to the default config file.
func (d *Dir) ConfigPath() string {
	return filepath.Join(d.path, ConfigFileName)
}

// TokenPath returns the path to the persisted token file.
func (d *Dir) TokenPath() string {
	return filepath.Join(d.path, TokenFileName)
}

// ExportsPath returns the directory for saved images and drafts.
func (d *Dir) ExportsPath() string {
	return filepath.Join(d.path, ExportsDirName)
}

// EnsureExists creates the home directory and subdirectories if they don't exist.
func (d *Dir) EnsureExists() error {
	if err := os.MkdirAll(d.ExportsPath(), 0o755); err != nil {
		return fmt.Errorf("failed to create exports directory: %w", err)
	}
	return nil
}

// Exists returns true if the home directory exists.
func (d *Dir) Exists() bool {
	_, err := os.Stat(d.path)
	return err == nil
}

// ConfigExists returns true if the config file exists in the home directory.
func (d *Dir) ConfigExists() bool {
	_, err := os.Stat(d.ConfigPath())
	return err == nil
}

// SavedToken is the on-disk shape of a persisted access token.
type SavedToken struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at,omitzero"`
	Provider    string    `json:"provider,omitempty"`
	SavedAt     time.Time `json:"saved_at"`
}

// Expired reports whether the token carries an expiry in the past.
func (t *SavedToken) Expired() bool {
	return !t.ExpiresAt.IsZero() && time.Now().After(t.ExpiresAt)
}

// SaveToken writes the token file with owner-only permissions.
func (d *Dir) SaveToken(token *SavedToken) error {
	if err := d.EnsureExists(); err != nil {
		return err
	}
	if token.SavedAt.IsZero() {
		token.SavedAt = time.Now()
	}
	data, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}
	if err := os.WriteFile(d.TokenPath(), data, 0o600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	return nil
}

// LoadToken reads the persisted token. Returns ErrNoToken if none exists.
func (d *Dir) LoadToken() (*SavedToken, error) {
	data, err := os.ReadFile(d.TokenPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoToken
		}
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}
	var token SavedToken
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("failed to parse token file: %w", err)
	}
	return &token, nil
}

// ClearToken removes the persisted token. Clearing an absent token is
// not an error.
func (d *Dir) ClearToken() error {
	if err := os.Remove(d.TokenPath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove token file: %w", err)
	}
	return nil
}
