package providers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"time"
)

const (
	LinkedInName           = "linkedin"
	linkedInDefaultBaseURL = "https://api.linkedin.com"
	linkedInFeedURLFormat  = "https://www.linkedin.com/feed/update/%s"
)

// LinkedInConfig holds configuration for the LinkedIn client.
type LinkedInConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	BaseURL      string // Optional (tests)
	AuthBaseURL  string // Optional (tests)
	RateLimit    int    // Requests per minute
	MaxRetries   int
	RetryDelay   time.Duration
	Timeout      time.Duration
	HTTPClient   *http.Client // Optional (tests)
	Logger       *slog.Logger
}

// LinkedInClient implements Publisher and Authenticator against the
// LinkedIn REST API.
type LinkedInClient struct {
	clientID     string
	clientSecret string
	redirectURL  string
	baseURL      string
	authBaseURL  string
	maxRetries   int
	retryDelay   time.Duration
	rateLimiter  *RateLimiter
	client       *http.Client
	logger       *slog.Logger
}

// NewLinkedInClient creates a new LinkedIn client.
func NewLinkedInClient(cfg LinkedInConfig) *LinkedInClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = linkedInDefaultBaseURL
	}
	if cfg.AuthBaseURL == "" {
		cfg.AuthBaseURL = "https://www.linkedin.com"
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 30
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 500 * time.Millisecond
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &LinkedInClient{
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		redirectURL:  cfg.RedirectURL,
		baseURL:      cfg.BaseURL,
		authBaseURL:  cfg.AuthBaseURL,
		maxRetries:   cfg.MaxRetries,
		retryDelay:   cfg.RetryDelay,
		rateLimiter:  NewRateLimiter(cfg.RateLimit),
		client:       httpClient,
		logger:       cfg.Logger.With("provider", LinkedInName),
	}
}

// Name returns the provider identifier.
func (c *LinkedInClient) Name() string {
	return LinkedInName
}

// Publish creates a post on behalf of the token's owner. The optional
// image is uploaded as an asset first and attached as media.
func (c *LinkedInClient) Publish(ctx context.Context, token string, req *PublishRequest) (*PublishReceipt, error) {
	if token == "" {
		return nil, fmt.Errorf("publish: %w", ErrAuthExpired)
	}

	profile, err := c.Profile(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve author profile: %w", err)
	}
	author := "urn:li:person:" + profile.ID

	var assetURN string
	if req.ImageB64 != "" {
		assetURN, err = c.uploadImage(ctx, token, author, req.ImageB64)
		if err != nil {
			return nil, fmt.Errorf("failed to upload post image: %w", err)
		}
	}

	visibility := req.Visibility
	if visibility == "" {
		visibility = "PUBLIC"
	}

	shareContent := map[string]any{
		"shareCommentary":    map[string]any{"text": req.Text},
		"shareMediaCategory": "NONE",
	}
	if assetURN != "" {
		shareContent["shareMediaCategory"] = "IMAGE"
		shareContent["media"] = []map[string]any{
			{"status": "READY", "media": assetURN},
		}
	}

	body := map[string]any{
		"author":         author,
		"lifecycleState": "PUBLISHED",
		"specificContent": map[string]any{
			"com.linkedin.ugc.ShareContent": shareContent,
		},
		"visibility": map[string]any{
			"com.linkedin.ugc.MemberNetworkVisibility": visibility,
		},
	}

	resp, respBody, err := c.doRequest(ctx, token, http.MethodPost, "/v2/ugcPosts", body)
	if err != nil {
		return nil, err
	}

	postID := resp.Header.Get("X-RestLi-Id")
	if postID == "" {
		var created struct {
			ID string `json:"id"`
		}
		if json.Unmarshal(respBody, &created) == nil {
			postID = created.ID
		}
	}
	if postID == "" {
		return nil, fmt.Errorf("publish succeeded but response carried no post id")
	}

	c.logger.Info("post published", "post_id", postID)
	return &PublishReceipt{
		ExternalID: postID,
		URL:        fmt.Sprintf(linkedInFeedURLFormat, postID),
	}, nil
}

// uploadImage registers and uploads an image asset, returning its URN.
func (c *LinkedInClient) uploadImage(ctx context.Context, token, author, imageB64 string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(imageB64)
	if err != nil {
		return "", fmt.Errorf("invalid base64 image payload: %w", err)
	}

	registerBody := map[string]any{
		"registerUploadRequest": map[string]any{
			"recipes": []string{"urn:li:digitalmediaRecipe:feedshare-image"},
			"owner":   author,
			"serviceRelationships": []map[string]any{
				{"relationshipType": "OWNER", "identifier": "urn:li:userGeneratedContent"},
			},
		},
	}

	_, respBody, err := c.doRequest(ctx, token, http.MethodPost, "/v2/assets?action=registerUpload", registerBody)
	if err != nil {
		return "", err
	}

	var registered struct {
		Value struct {
			Asset           string `json:"asset"`
			UploadMechanism map[string]struct {
				UploadURL string `json:"uploadUrl"`
			} `json:"uploadMechanism"`
		} `json:"value"`
	}
	if err := json.Unmarshal(respBody, &registered); err != nil {
		return "", fmt.Errorf("failed to decode upload registration: %w", err)
	}

	var uploadURL string
	for _, mech := range registered.Value.UploadMechanism {
		if mech.UploadURL != "" {
			uploadURL = mech.UploadURL
			break
		}
	}
	if uploadURL == "" || registered.Value.Asset == "" {
		return "", fmt.Errorf("upload registration returned no upload target")
	}

	putReq, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("failed to create upload request: %w", err)
	}
	putReq.Header.Set("Authorization", "Bearer "+token)
	putReq.Header.Set("Content-Type", "application/octet-stream")

	putResp, err := c.client.Do(putReq)
	if err != nil {
		return "", fmt.Errorf("image upload failed: %w", err)
	}
	defer putResp.Body.Close()
	if putResp.StatusCode >= 400 {
		return "", fmt.Errorf("image upload failed (status %d)", putResp.StatusCode)
	}

	return registered.Value.Asset, nil
}

// doRequest makes an authenticated API request with bounded retries.
func (c *LinkedInClient) doRequest(ctx context.Context, token, method, path string, body any) (*http.Response, []byte, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, nil, err
	}

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		var bodyReader io.Reader
		if body != nil {
			bodyBytes, err := json.Marshal(body)
			if err != nil {
				return nil, nil, fmt.Errorf("failed to marshal request: %w", err)
			}
			bodyReader = bytes.NewReader(bodyBytes)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Restli-Protocol-Version", "2.0.0")

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
			c.sleepWithBackoff(ctx, attempt)
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("failed to read response: %w", err)
			c.sleepWithBackoff(ctx, attempt)
			continue
		}

		switch {
		case resp.StatusCode == http.StatusUnauthorized:
			return nil, nil, fmt.Errorf("linkedin rejected token: %w", ErrAuthExpired)
		case resp.StatusCode == http.StatusTooManyRequests:
			lastErr = fmt.Errorf("linkedin rate limited: %w", ErrQuotaExceeded)
			c.sleepWithBackoff(ctx, attempt)
			continue
		case resp.StatusCode >= 500:
			lastErr = fmt.Errorf("linkedin error (status %d): %s", resp.StatusCode, string(respBody))
			c.sleepWithBackoff(ctx, attempt)
			continue
		case resp.StatusCode >= 400:
			return nil, nil, fmt.Errorf("linkedin error (status %d): %s", resp.StatusCode, string(respBody))
		}

		return resp, respBody, nil
	}

	return nil, nil, fmt.Errorf("max retries (%d) exceeded: %w", c.maxRetries, lastErr)
}

// sleepWithBackoff sleeps with exponential backoff and jitter, respecting
// cancellation.
func (c *LinkedInClient) sleepWithBackoff(ctx context.Context, attempt int) {
	delay := c.retryDelay * time.Duration(1<<attempt)
	if delay > 10*time.Second {
		delay = 10 * time.Second
	}
	// Jitter: -20% to +30%
	delay = time.Duration(float64(delay) * (0.8 + 0.5*rand.Float64()))
	select {
	case <-ctx.Done():
	case <-time.After(delay):
	}
}
