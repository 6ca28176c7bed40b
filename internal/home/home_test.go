package home

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	t.Run("with explicit path", func(t *testing.T) {
		dir, err := New("/tmp/test-driftpost")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if dir.Path() != "/tmp/test-driftpost" {
			t.Errorf("expected path /tmp/test-driftpost, got %s", dir.Path())
		}
	})

	t.Run("with empty path uses default", func(t *testing.T) {
		dir, err := New("")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		home, _ := os.UserHomeDir()
		expected := filepath.Join(home, DefaultDirName)
		if dir.Path() != expected {
			t.Errorf("expected path %s, got %s", expected, dir.Path())
		}
	})
}

func TestDir_Paths(t *testing.T) {
	dir, _ := New("/tmp/test-driftpost")

	t.Run("ConfigPath", func(t *testing.T) {
		expected := "/tmp/test-driftpost/config.yaml"
		if dir.ConfigPath() != expected {
			t.Errorf("expected %s, got %s", expected, dir.ConfigPath())
		}
	})

	t.Run("TokenPath", func(t *testing.T) {
		expected := "/tmp/test-driftpost/token.json"
		if dir.TokenPath() != expected {
			t.Errorf("expected %s, got %s", expected, dir.TokenPath())
		}
	})

	t.Run("ExportsPath", func(t *testing.T) {
		expected := "/tmp/test-driftpost/exports"
		if dir.ExportsPath() != expected {
			t.Errorf("expected %s, got %s", expected, dir.ExportsPath())
		}
	})
}

func TestDir_EnsureExists(t *testing.T) {
	tmpDir := t.TempDir()
	dir, err := New(filepath.Join(tmpDir, "driftpost-test"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if dir.Exists() {
		t.Error("directory should not exist yet")
	}
	if err := dir.EnsureExists(); err != nil {
		t.Fatalf("EnsureExists: %v", err)
	}
	if !dir.Exists() {
		t.Error("directory should exist after EnsureExists")
	}
	if _, err := os.Stat(dir.ExportsPath()); err != nil {
		t.Errorf("exports directory missing: %v", err)
	}

	// Second call is a no-op.
	if err := dir.EnsureExists(); err != nil {
		t.Errorf("second EnsureExists: %v", err)
	}
}

func TestTokenRoundTrip(t *testing.T) {
	dir, err := New(filepath.Join(t.TempDir(), "driftpost-test"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := dir.LoadToken(); !errors.Is(err, ErrNoToken) {
		t.Fatalf("LoadToken before save error = %v, want ErrNoToken", err)
	}

	saved := &SavedToken{
		AccessToken: "secret-token",
		ExpiresAt:   time.Now().Add(time.Hour).UTC(),
		Provider:    "linkedin",
	}
	if err := dir.SaveToken(saved); err != nil {
		t.Fatalf("SaveToken: %v", err)
	}

	info, err := os.Stat(dir.TokenPath())
	if err != nil {
		t.Fatalf("stat token file: %v", err)
	}
	if got := info.Mode().Perm(); got != 0o600 {
		t.Errorf("token file mode = %o, want 600", got)
	}

	loaded, err := dir.LoadToken()
	if err != nil {
		t.Fatalf("LoadToken: %v", err)
	}
	if loaded.AccessToken != "secret-token" {
		t.Errorf("loaded token = %q, want secret-token", loaded.AccessToken)
	}
	if loaded.Provider != "linkedin" {
		t.Errorf("loaded provider = %q, want linkedin", loaded.Provider)
	}
	if loaded.SavedAt.IsZero() {
		t.Error("SavedAt not stamped on save")
	}
	if loaded.Expired() {
		t.Error("token with future expiry reported expired")
	}

	if err := dir.ClearToken(); err != nil {
		t.Fatalf("ClearToken: %v", err)
	}
	if _, err := dir.LoadToken(); !errors.Is(err, ErrNoToken) {
		t.Errorf("LoadToken after clear error = %v, want ErrNoToken", err)
	}

	// Clearing again is not an error.
	if err := dir.ClearToken(); err != nil {
		t.Errorf("second ClearToken: %v", err)
	}
}

func TestSavedToken_Expired(t *testing.T) {
	past := &SavedToken{AccessToken: "x", ExpiresAt: time.Now().Add(-time.Minute)}
	if !past.Expired() {
		t.Error("past expiry not reported expired")
	}
	zero := &SavedToken{AccessToken: "x"}
	if zero.Expired() {
		t.Error("zero expiry reported expired")
	}
}
