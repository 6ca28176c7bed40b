package providers

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// ContentProvider bundles the generative capabilities a content backend
// must offer: planning, research, composing and image generation.
type ContentProvider interface {
	Planner
	Researcher
	Composer
	ImageGenerator
}

// SocialProvider bundles publishing and authentication for one platform.
type SocialProvider interface {
	Publisher
	Authenticator
}

// Registry holds references to content and social providers.
// It supports config-driven instantiation, hot-reload, and thread-safe access.
type Registry struct {
	mu      sync.RWMutex
	content map[string]ContentProvider
	social  map[string]SocialProvider
	logger  *slog.Logger
}

// NewRegistry creates a new empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		content: make(map[string]ContentProvider),
		social:  make(map[string]SocialProvider),
		logger:  slog.Default(),
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger *slog.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger = logger
}

// RegisterContent registers a content provider by name.
func (r *Registry) RegisterContent(name string, provider ContentProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.content[name] = provider
	r.logger.Info("registered content provider", "name", name)
}

// RegisterSocial registers a social provider by name.
func (r *Registry) RegisterSocial(name string, provider SocialProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.social[name] = provider
	r.logger.Info("registered social provider", "name", name)
}

// GetContent returns a content provider by name.
func (r *Registry) GetContent(name string) (ContentProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	provider, ok := r.content[name]
	if !ok {
		return nil, fmt.Errorf("content provider not found: %s", name)
	}
	return provider, nil
}

// GetSocial returns a social provider by name.
func (r *Registry) GetSocial(name string) (SocialProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	provider, ok := r.social[name]
	if !ok {
		return nil, fmt.Errorf("social provider not found: %s", name)
	}
	return provider, nil
}

// ListContent returns all registered content provider names, sorted.
func (r *Registry) ListContent() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.content))
	for name := range r.content {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ListSocial returns all registered social provider names, sorted.
func (r *Registry) ListSocial() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.social))
	for name := range r.social {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RegistryConfig defines the providers to instantiate from config.
type RegistryConfig struct {
	ContentProviders map[string]ContentProviderConfig
	SocialProviders  map[string]SocialProviderConfig
	Logger           *slog.Logger
}

// ContentProviderConfig configures a content provider with resolved secrets.
type ContentProviderConfig struct {
	Type       string // "openai"
	APIKey     string
	ChatModel  string
	ImageModel string
	RateLimit  int // Requests per minute
	Enabled    bool
}

// SocialProviderConfig configures a social provider with resolved secrets.
type SocialProviderConfig struct {
	Type         string // "linkedin"
	ClientID     string
	ClientSecret string
	RedirectURL  string
	RateLimit    int // Requests per minute
	Enabled      bool
}

// NewRegistryFromConfig creates a registry with providers based on config.
// Only enabled providers with credentials are registered.
func NewRegistryFromConfig(cfg RegistryConfig) *Registry {
	r := NewRegistry()
	if cfg.Logger != nil {
		r.logger = cfg.Logger
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.applyConfig(cfg)
	return r
}

// Reload updates the registry based on new configuration.
// Providers that are no longer configured are unregistered.
func (r *Registry) Reload(cfg RegistryConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()

	wantContent := make(map[string]bool)
	wantSocial := make(map[string]bool)

	for name, provCfg := range cfg.ContentProviders {
		if !provCfg.Enabled || provCfg.APIKey == "" {
			continue
		}
		wantContent[name] = true
		if provider := createContentProvider(provCfg, r.logger); provider != nil {
			r.content[name] = provider
			r.logger.Info("registered content provider", "name", name, "type", provCfg.Type)
		}
	}

	for name, provCfg := range cfg.SocialProviders {
		if !provCfg.Enabled || provCfg.ClientID == "" {
			continue
		}
		wantSocial[name] = true
		if provider := createSocialProvider(provCfg, r.logger); provider != nil {
			r.social[name] = provider
			r.logger.Info("registered social provider", "name", name, "type", provCfg.Type)
		}
	}

	for name := range r.content {
		if !wantContent[name] {
			delete(r.content, name)
			r.logger.Info("unregistered content provider", "name", name)
		}
	}
	for name := range r.social {
		if !wantSocial[name] {
			delete(r.social, name)
			r.logger.Info("unregistered social provider", "name", name)
		}
	}
}

// applyConfig applies configuration without locking (used during init).
func (r *Registry) applyConfig(cfg RegistryConfig) {
	for name, provCfg := range cfg.ContentProviders {
		if !provCfg.Enabled || provCfg.APIKey == "" {
			continue
		}
		if provider := createContentProvider(provCfg, r.logger); provider != nil {
			r.content[name] = provider
		}
	}
	for name, provCfg := range cfg.SocialProviders {
		if !provCfg.Enabled || provCfg.ClientID == "" {
			continue
		}
		if provider := createSocialProvider(provCfg, r.logger); provider != nil {
			r.social[name] = provider
		}
	}
}

func createContentProvider(cfg ContentProviderConfig, logger *slog.Logger) ContentProvider {
	switch cfg.Type {
	case "openai":
		return NewOpenAIClient(OpenAIConfig{
			APIKey:     cfg.APIKey,
			ChatModel:  cfg.ChatModel,
			ImageModel: cfg.ImageModel,
			RateLimit:  cfg.RateLimit,
			Logger:     logger,
		})
	default:
		return nil
	}
}

func createSocialProvider(cfg SocialProviderConfig, logger *slog.Logger) SocialProvider {
	switch cfg.Type {
	case "linkedin":
		return NewLinkedInClient(LinkedInConfig{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			RateLimit:    cfg.RateLimit,
			Logger:       logger,
		})
	default:
		return nil
	}
}
