package config

import "time"

// Config holds driftpost configuration.
// Stored at: ~/.driftpost/config.yaml
type Config struct {
	ContentProviders map[string]ContentProviderCfg `mapstructure:"content_providers" yaml:"content_providers"`
	SocialProviders  map[string]SocialProviderCfg  `mapstructure:"social_providers" yaml:"social_providers"`
	Defaults         DefaultsCfg                   `mapstructure:"defaults" yaml:"defaults"`
	Engine           EngineCfg                     `mapstructure:"engine" yaml:"engine"`
	Server           ServerCfg                     `mapstructure:"server" yaml:"server"`
}

// ContentProviderCfg configures a generative content provider.
type ContentProviderCfg struct {
	Type       string `mapstructure:"type" yaml:"type"`               // "openai"
	APIKey     string `mapstructure:"api_key" yaml:"api_key"`         // supports ${ENV_VAR} syntax
	ChatModel  string `mapstructure:"chat_model" yaml:"chat_model"`   // text model name
	ImageModel string `mapstructure:"image_model" yaml:"image_model"` // image model name
	RateLimit  int    `mapstructure:"rate_limit" yaml:"rate_limit"`   // requests per minute
	Enabled    bool   `mapstructure:"enabled" yaml:"enabled"`
}

// SocialProviderCfg configures a social platform provider.
type SocialProviderCfg struct {
	Type         string `mapstructure:"type" yaml:"type"`                   // "linkedin"
	ClientID     string `mapstructure:"client_id" yaml:"client_id"`         // supports ${ENV_VAR} syntax
	ClientSecret string `mapstructure:"client_secret" yaml:"client_secret"` // supports ${ENV_VAR} syntax
	RedirectURL  string `mapstructure:"redirect_url" yaml:"redirect_url"`
	RateLimit    int    `mapstructure:"rate_limit" yaml:"rate_limit"` // requests per minute
	Enabled      bool   `mapstructure:"enabled" yaml:"enabled"`
}

// DefaultsCfg specifies default provider selections.
type DefaultsCfg struct {
	ContentProvider string `mapstructure:"content_provider" yaml:"content_provider"`
	SocialProvider  string `mapstructure:"social_provider" yaml:"social_provider"`
}

// EngineCfg tunes the workflow sequencer.
type EngineCfg struct {
	// StageDelay is the pause between stages.
	StageDelay time.Duration `mapstructure:"stage_delay" yaml:"stage_delay"`
	// ImageDelay is the pause between per-image generation calls.
	ImageDelay time.Duration `mapstructure:"image_delay" yaml:"image_delay"`
	// MaxStages caps stages processed per run.
	MaxStages int `mapstructure:"max_stages" yaml:"max_stages"`
	// AuthTimeout bounds the interactive authorization window.
	AuthTimeout time.Duration `mapstructure:"auth_timeout" yaml:"auth_timeout"`
}

// ServerCfg configures the HTTP API server.
type ServerCfg struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port"`
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		ContentProviders: map[string]ContentProviderCfg{
			"openai": {
				Type:       "openai",
				APIKey:     "${OPENAI_API_KEY}",
				ChatModel:  "gpt-4o-mini",
				ImageModel: "dall-e-3",
				RateLimit:  60,
				Enabled:    true,
			},
		},
		SocialProviders: map[string]SocialProviderCfg{
			"linkedin": {
				Type:         "linkedin",
				ClientID:     "${LINKEDIN_CLIENT_ID}",
				ClientSecret: "${LINKEDIN_CLIENT_SECRET}",
				RedirectURL:  "http://localhost:8480/auth/callback",
				RateLimit:    30,
				Enabled:      true,
			},
		},
		Defaults: DefaultsCfg{
			ContentProvider: "openai",
			SocialProvider:  "linkedin",
		},
		Engine: EngineCfg{
			StageDelay:  800 * time.Millisecond,
			ImageDelay:  2 * time.Second,
			MaxStages:   20,
			AuthTimeout: 2 * time.Minute,
		},
		Server: ServerCfg{
			Host: "localhost",
			Port: 8480,
		},
	}
}

// GetContentProvider returns a content provider config by name.
func (c *Config) GetContentProvider(name string) (ContentProviderCfg, bool) {
	cfg, ok := c.ContentProviders[name]
	return cfg, ok
}

// GetSocialProvider returns a social provider config by name.
func (c *Config) GetSocialProvider(name string) (SocialProviderCfg, bool) {
	cfg, ok := c.SocialProviders[name]
	return cfg, ok
}

// EnabledContentProviders returns all enabled content providers.
func (c *Config) EnabledContentProviders() map[string]ContentProviderCfg {
	result := make(map[string]ContentProviderCfg)
	for name, cfg := range c.ContentProviders {
		if cfg.Enabled {
			result[name] = cfg
		}
	}
	return result
}

// EnabledSocialProviders returns all enabled social providers.
func (c *Config) EnabledSocialProviders() map[string]SocialProviderCfg {
	result := make(map[string]SocialProviderCfg)
	for name, cfg := range c.SocialProviders {
		if cfg.Enabled {
			result[name] = cfg
		}
	}
	return result
}
