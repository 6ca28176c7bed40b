package providers

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

const MockName = "mock"

// MockContent is a ContentProvider for testing.
type MockContent struct {
	// Configurable behavior
	Latency    time.Duration
	ShouldFail bool
	FailAfter  int // Fail after N requests (0 = never)

	// Canned responses
	PlanResult     *WorkflowPlan
	ResearchResult *ResearchResult
	ComposeResult  *ComposedPost
	ImageResult    *GeneratedImage

	// ImageFailOn lists 1-indexed image call numbers that should fail.
	ImageFailOn []int

	// State
	requestCount atomic.Int64
	imageCount   atomic.Int64

	mu          sync.Mutex
	composeReqs []ComposeRequest
	imageReqs   []ImageRequest
}

// NewMockContent creates a mock content provider with sensible defaults.
func NewMockContent() *MockContent {
	return &MockContent{
		PlanResult: &WorkflowPlan{Stages: map[string]bool{"research": true, "compose": true}},
		ResearchResult: &ResearchResult{
			Summary: "mock research summary",
			Sources: []Source{{Title: "Mock Source", URL: "https://example.com/mock"}},
		},
		ComposeResult: &ComposedPost{
			Text:        "mock post text",
			Hashtags:    []string{"#mock"},
			ImagePrompt: "mock image prompt",
		},
		ImageResult: &GeneratedImage{B64: "bW9ja2ltYWdl"},
	}
}

func (m *MockContent) Name() string { return MockName }

// RequestCount returns the total number of calls made.
func (m *MockContent) RequestCount() int64 {
	return m.requestCount.Load()
}

// ImageRequestCount returns the number of image calls made.
func (m *MockContent) ImageRequestCount() int64 {
	return m.imageCount.Load()
}

// ComposeRequests returns every compose request received.
func (m *MockContent) ComposeRequests() []ComposeRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ComposeRequest(nil), m.composeReqs...)
}

// ImageRequests returns every image request received.
func (m *MockContent) ImageRequests() []ImageRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ImageRequest(nil), m.imageReqs...)
}

func (m *MockContent) Plan(ctx context.Context, intent string, hasReferenceImage bool) (*WorkflowPlan, error) {
	if err := m.tick(ctx); err != nil {
		return nil, err
	}
	return m.PlanResult, nil
}

func (m *MockContent) Research(ctx context.Context, topic string) (*ResearchResult, error) {
	if err := m.tick(ctx); err != nil {
		return nil, err
	}
	return m.ResearchResult, nil
}

func (m *MockContent) Compose(ctx context.Context, req *ComposeRequest) (*ComposedPost, error) {
	if err := m.tick(ctx); err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.composeReqs = append(m.composeReqs, *req)
	m.mu.Unlock()
	return m.ComposeResult, nil
}

func (m *MockContent) GenerateImage(ctx context.Context, req *ImageRequest) (*GeneratedImage, error) {
	if err := m.tick(ctx); err != nil {
		return nil, err
	}
	call := m.imageCount.Add(1)
	m.mu.Lock()
	m.imageReqs = append(m.imageReqs, *req)
	m.mu.Unlock()

	for _, n := range m.ImageFailOn {
		if int64(n) == call {
			return nil, fmt.Errorf("mock image call %d configured to fail", call)
		}
	}

	img := *m.ImageResult
	img.Prompt = req.Prompt
	img.Style = req.Style
	return &img, nil
}

// tick applies latency and failure configuration to one call.
func (m *MockContent) tick(ctx context.Context) error {
	count := m.requestCount.Add(1)

	if m.Latency > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.Latency):
		}
	}

	if m.ShouldFail {
		return fmt.Errorf("mock content provider configured to fail")
	}
	if m.FailAfter > 0 && count > int64(m.FailAfter) {
		return fmt.Errorf("mock content provider failing after %d requests", m.FailAfter)
	}
	return nil
}

// MockSocial is a SocialProvider for testing.
type MockSocial struct {
	// Configurable behavior
	Latency     time.Duration
	PublishErr  error
	ExchangeErr error

	PublishResult *PublishReceipt
	Token         *AuthToken
	Identity      *Identity

	publishCount atomic.Int64

	mu          sync.Mutex
	publishReqs []PublishRequest
	tokens      []string
}

// NewMockSocial creates a mock social provider with sensible defaults.
func NewMockSocial() *MockSocial {
	return &MockSocial{
		PublishResult: &PublishReceipt{
			ExternalID: "urn:li:share:12345",
			URL:        "https://example.com/posts/12345",
		},
		Token:    &AuthToken{AccessToken: "mock-token"},
		Identity: &Identity{ID: "mock-member", Name: "Mock Member"},
	}
}

func (m *MockSocial) Name() string { return MockName }

// PublishCount returns the number of publish calls made.
func (m *MockSocial) PublishCount() int64 {
	return m.publishCount.Load()
}

// PublishRequests returns every publish request received.
func (m *MockSocial) PublishRequests() []PublishRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]PublishRequest(nil), m.publishReqs...)
}

// Tokens returns every token seen by Publish.
func (m *MockSocial) Tokens() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.tokens...)
}

func (m *MockSocial) Publish(ctx context.Context, token string, req *PublishRequest) (*PublishReceipt, error) {
	m.publishCount.Add(1)
	if m.Latency > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.Latency):
		}
	}

	m.mu.Lock()
	m.publishReqs = append(m.publishReqs, *req)
	m.tokens = append(m.tokens, token)
	m.mu.Unlock()

	if m.PublishErr != nil {
		return nil, m.PublishErr
	}
	return m.PublishResult, nil
}

func (m *MockSocial) AuthURL(state string) string {
	return "https://example.com/oauth/authorize?state=" + state
}

func (m *MockSocial) Exchange(ctx context.Context, code string) (*AuthToken, error) {
	if m.ExchangeErr != nil {
		return nil, m.ExchangeErr
	}
	return m.Token, nil
}

func (m *MockSocial) Profile(ctx context.Context, accessToken string) (*Identity, error) {
	return m.Identity, nil
}
