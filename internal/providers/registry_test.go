package providers

import (
	"log/slog"
	"testing"
)

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := NewRegistry()
	r.SetLogger(slog.Default())

	content := NewMockContent()
	social := NewMockSocial()
	r.RegisterContent("mock", content)
	r.RegisterSocial("mock-social", social)

	got, err := r.GetContent("mock")
	if err != nil {
		t.Fatalf("GetContent() error = %v", err)
	}
	if got != content {
		t.Error("GetContent() returned a different provider")
	}

	gotSocial, err := r.GetSocial("mock-social")
	if err != nil {
		t.Fatalf("GetSocial() error = %v", err)
	}
	if gotSocial != social {
		t.Error("GetSocial() returned a different provider")
	}

	if _, err := r.GetContent("missing"); err == nil {
		t.Error("GetContent() succeeded for unknown provider")
	}
	if _, err := r.GetSocial("missing"); err == nil {
		t.Error("GetSocial() succeeded for unknown provider")
	}
}

func TestNewRegistryFromConfig(t *testing.T) {
	cfg := RegistryConfig{
		ContentProviders: map[string]ContentProviderConfig{
			"openai": {
				Type:      "openai",
				APIKey:    "sk-test",
				ChatModel: "gpt-4o-mini",
				Enabled:   true,
			},
			"no-key": {
				Type:    "openai",
				Enabled: true,
			},
			"disabled": {
				Type:    "openai",
				APIKey:  "sk-other",
				Enabled: false,
			},
		},
		SocialProviders: map[string]SocialProviderConfig{
			"linkedin": {
				Type:     "linkedin",
				ClientID: "client-id",
				Enabled:  true,
			},
			"unknown-type": {
				Type:     "mastodon",
				ClientID: "client-id",
				Enabled:  true,
			},
		},
	}

	r := NewRegistryFromConfig(cfg)

	if got := len(r.ListContent()); got != 1 {
		t.Errorf("ListContent() returned %d providers, want 1", got)
	}
	if _, err := r.GetContent("openai"); err != nil {
		t.Errorf("GetContent(openai) error = %v", err)
	}
	if _, err := r.GetContent("no-key"); err == nil {
		t.Error("provider without credentials was registered")
	}
	if _, err := r.GetContent("disabled"); err == nil {
		t.Error("disabled provider was registered")
	}

	if got := len(r.ListSocial()); got != 1 {
		t.Errorf("ListSocial() returned %d providers, want 1", got)
	}
	if _, err := r.GetSocial("unknown-type"); err == nil {
		t.Error("provider with unknown type was registered")
	}
}

func TestRegistry_Reload(t *testing.T) {
	r := NewRegistryFromConfig(RegistryConfig{
		ContentProviders: map[string]ContentProviderConfig{
			"openai": {Type: "openai", APIKey: "sk-test", Enabled: true},
		},
		SocialProviders: map[string]SocialProviderConfig{
			"linkedin": {Type: "linkedin", ClientID: "client-id", Enabled: true},
		},
	})

	// Drop the social provider and disable content in the new config.
	r.Reload(RegistryConfig{
		ContentProviders: map[string]ContentProviderConfig{
			"openai": {Type: "openai", APIKey: "sk-test", Enabled: false},
		},
	})

	if _, err := r.GetContent("openai"); err == nil {
		t.Error("disabled content provider survived reload")
	}
	if _, err := r.GetSocial("linkedin"); err == nil {
		t.Error("removed social provider survived reload")
	}

	// Re-enabling brings it back.
	r.Reload(RegistryConfig{
		ContentProviders: map[string]ContentProviderConfig{
			"openai": {Type: "openai", APIKey: "sk-test", Enabled: true},
		},
	})
	if _, err := r.GetContent("openai"); err != nil {
		t.Errorf("GetContent() after re-enable error = %v", err)
	}
}
