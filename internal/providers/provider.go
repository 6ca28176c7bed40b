package providers

import (
	"context"
	"errors"
	"time"
)

// Planner decides which pipeline stages to enable for a free-text intent.
// Used once before a run to auto-configure the stage registry.
type Planner interface {
	// Plan returns the stage plan for the given intent.
	Plan(ctx context.Context, intent string, hasReferenceImage bool) (*WorkflowPlan, error)

	// Name returns the provider identifier (e.g., "openai").
	Name() string
}

// Researcher gathers background material for a topic.
// Implementations must tolerate upstream unavailability by returning a
// degraded summary rather than failing outright when possible.
type Researcher interface {
	Research(ctx context.Context, topic string) (*ResearchResult, error)
	Name() string
}

// Composer drafts a social post from research material or a raw topic.
type Composer interface {
	Compose(ctx context.Context, req *ComposeRequest) (*ComposedPost, error)
	Name() string
}

// ImageGenerator produces exactly one image per call.
// Callers that want N images call it N times, sequentially.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, req *ImageRequest) (*GeneratedImage, error)
	Name() string
}

// Publisher posts composed content to the social platform.
type Publisher interface {
	Publish(ctx context.Context, token string, req *PublishRequest) (*PublishReceipt, error)
	Name() string
}

// Authenticator implements the platform's three-step OAuth protocol.
// The redirect URL is opened by the user in a separate context; the code
// arrives back via the callback endpoint and is exchanged for a token.
type Authenticator interface {
	// AuthURL returns the authorization URL for the given state nonce.
	AuthURL(state string) string

	// Exchange trades an authorization code for an access token.
	Exchange(ctx context.Context, code string) (*AuthToken, error)

	// Profile fetches the minimal identity for the token's owner.
	Profile(ctx context.Context, accessToken string) (*Identity, error)

	Name() string
}

// WorkflowPlan is the planner's answer: which stage kinds to enable and
// per-kind configuration overrides. Kinds absent from Stages keep their
// registry defaults; mandatory anchors are ignored if present.
type WorkflowPlan struct {
	Stages  map[string]bool           `json:"stages"`
	Configs map[string]map[string]any `json:"configs,omitempty"`
}

// Source is a single research citation.
type Source struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// ResearchResult is the researcher's output.
type ResearchResult struct {
	Summary string   `json:"summary"`
	Sources []Source `json:"sources,omitempty"`

	// Degraded is set when the primary research path failed and the
	// summary was produced from the topic alone.
	Degraded bool `json:"degraded,omitempty"`
}

// ComposeRequest parametrizes a compose call.
type ComposeRequest struct {
	// Text is the source material: a research summary, or the raw topic
	// when no research is available.
	Text string

	Tone     string
	Language string
	Length   string

	// ReferenceImage is an optional base64 payload the user supplied.
	ReferenceImage string
}

// ComposedPost is the composer's output.
type ComposedPost struct {
	Text        string   `json:"text"`
	Hashtags    []string `json:"hashtags,omitempty"`
	ImagePrompt string   `json:"image_prompt,omitempty"`
}

// ImageRequest parametrizes a single image generation call.
type ImageRequest struct {
	Prompt         string
	Style          string
	ReferenceImage string
}

// GeneratedImage is one generated image payload.
type GeneratedImage struct {
	B64    string `json:"b64"`
	Prompt string `json:"prompt,omitempty"`
	Style  string `json:"style,omitempty"`
}

// PublishRequest parametrizes a publish call.
type PublishRequest struct {
	Text string

	// ImageB64 is an optional image to attach (the first generated image).
	ImageB64 string

	Visibility string
}

// PublishReceipt identifies the created post.
type PublishReceipt struct {
	ExternalID string `json:"external_id"`
	URL        string `json:"url"`
}

// AuthToken is an opaque platform credential.
type AuthToken struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at,omitempty"`
}

// Identity is the minimal profile identity of the authenticated user.
type Identity struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Handle string `json:"handle,omitempty"`
}

// Sentinel errors shared across provider implementations.
var (
	// ErrQuotaExceeded marks quota / rate-limit failures from upstream
	// APIs so callers can rewrite them into a clearer message.
	ErrQuotaExceeded = errors.New("provider quota exceeded")

	// ErrAuthExpired marks credentials the platform no longer accepts.
	ErrAuthExpired = errors.New("authentication expired")
)

// IsQuota reports whether err is a quota / rate-limit failure.
func IsQuota(err error) bool {
	return errors.Is(err, ErrQuotaExceeded)
}
