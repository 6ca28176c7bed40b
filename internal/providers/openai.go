package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const (
	OpenAIName               = "openai"
	openAIDefaultChatModel   = "gpt-4o-mini"
	openAIDefaultImageModel  = "dall-e-3"
	openAIDefaultTemperature = 0.7
)

// planSchema constrains the planner's structured output.
var planSchema = json.RawMessage(`{
	"type": "object",
	"required": ["stages"],
	"properties": {
		"stages": {
			"type": "object",
			"additionalProperties": {"type": "boolean"}
		},
		"configs": {
			"type": "object",
			"additionalProperties": {"type": "object"}
		}
	}
}`)

// composeSchema constrains the composer's structured output.
var composeSchema = json.RawMessage(`{
	"type": "object",
	"required": ["text"],
	"properties": {
		"text": {"type": "string"},
		"hashtags": {"type": "array", "items": {"type": "string"}},
		"image_prompt": {"type": "string"}
	}
}`)

// researchSchema constrains the researcher's structured output.
var researchSchema = json.RawMessage(`{
	"type": "object",
	"required": ["summary"],
	"properties": {
		"summary": {"type": "string"},
		"sources": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["title", "url"],
				"properties": {
					"title": {"type": "string"},
					"url": {"type": "string"}
				}
			}
		}
	}
}`)

// OpenAIConfig holds configuration for the OpenAI client.
type OpenAIConfig struct {
	APIKey     string
	ChatModel  string
	ImageModel string
	RateLimit  int           // Requests per minute
	MaxRetries int           // Retry attempts for SDK transport
	Timeout    time.Duration // HTTP timeout
	BaseURL    string        // Optional (tests)
	HTTPClient *http.Client  // Optional (tests)
	Logger     *slog.Logger
}

// OpenAIClient implements Planner, Researcher, Composer and ImageGenerator
// using the official OpenAI SDK.
type OpenAIClient struct {
	apiKey      string
	chatModel   string
	imageModel  string
	rateLimiter *RateLimiter
	client      openai.Client
	logger      *slog.Logger
}

// NewOpenAIClient creates a new OpenAI client.
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	if cfg.ChatModel == "" {
		cfg.ChatModel = openAIDefaultChatModel
	}
	if cfg.ImageModel == "" {
		cfg.ImageModel = openAIDefaultImageModel
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 60
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIClient{
		apiKey:      cfg.APIKey,
		chatModel:   cfg.ChatModel,
		imageModel:  cfg.ImageModel,
		rateLimiter: NewRateLimiter(cfg.RateLimit),
		client:      openai.NewClient(opts...),
		logger:      cfg.Logger.With("provider", OpenAIName),
	}
}

// Name returns the provider identifier.
func (c *OpenAIClient) Name() string {
	return OpenAIName
}

// RateLimiterStatus returns the current limiter state.
func (c *OpenAIClient) RateLimiterStatus() RateLimiterStatus {
	return c.rateLimiter.Status()
}

// Plan decides which stages to enable for a free-text intent.
func (c *OpenAIClient) Plan(ctx context.Context, intent string, hasReferenceImage bool) (*WorkflowPlan, error) {
	system := `You configure a social content pipeline with optional stages:
research, compose, visual, preview, publish. Given the user's intent, return
JSON {"stages": {<stage>: bool}, "configs": {<stage>: {<key>: <value>}}}.
Config keys: compose takes tone, language, length; visual takes count (int)
and style. Only include stages you have an opinion about.`

	user := fmt.Sprintf("Intent: %s\nReference image supplied: %v", intent, hasReferenceImage)

	raw, err := c.structuredChat(ctx, system, user, planSchema)
	if err != nil {
		return nil, fmt.Errorf("plan failed: %w", err)
	}

	var plan WorkflowPlan
	if err := json.Unmarshal(raw, &plan); err != nil {
		return nil, fmt.Errorf("failed to decode plan: %w", err)
	}
	if plan.Stages == nil {
		plan.Stages = make(map[string]bool)
	}
	return &plan, nil
}

// Research summarizes a topic with sources. If the primary structured call
// fails for a reason other than cancellation or quota, one degraded attempt
// produces a summary from the topic alone.
func (c *OpenAIClient) Research(ctx context.Context, topic string) (*ResearchResult, error) {
	system := `You are a research assistant. Summarize the current landscape for
the given topic in 3-5 sentences and cite up to 5 sources as
{"summary": ..., "sources": [{"title": ..., "url": ...}]}. Return JSON only.`

	raw, err := c.structuredChat(ctx, system, "Topic: "+topic, researchSchema)
	if err == nil {
		var res ResearchResult
		if uErr := json.Unmarshal(raw, &res); uErr == nil && res.Summary != "" {
			return &res, nil
		}
		err = fmt.Errorf("research returned no usable summary")
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if IsQuota(err) {
		return nil, err
	}

	c.logger.Warn("primary research failed, attempting degraded summary", "error", err)

	summary, fbErr := c.chat(ctx,
		"Write a 3 sentence factual overview of the topic. Plain text only.",
		"Topic: "+topic)
	if fbErr != nil {
		return nil, fmt.Errorf("research failed: %w", err)
	}

	return &ResearchResult{Summary: strings.TrimSpace(summary), Degraded: true}, nil
}

// Compose drafts a post from the request material.
func (c *OpenAIClient) Compose(ctx context.Context, req *ComposeRequest) (*ComposedPost, error) {
	tone := req.Tone
	if tone == "" {
		tone = "Professional"
	}
	language := req.Language
	if language == "" {
		language = "English"
	}
	length := req.Length
	if length == "" {
		length = "Medium"
	}

	system := fmt.Sprintf(`You write social media posts. Tone: %s. Language: %s.
Length: %s. Return JSON {"text": ..., "hashtags": [...], "image_prompt": ...}
where image_prompt describes a single illustrative image for the post.`,
		tone, language, length)

	user := "Source material:\n" + req.Text
	if req.ReferenceImage != "" {
		user += "\n\nThe user attached a reference image; write the post to accompany it."
	}

	raw, err := c.structuredChat(ctx, system, user, composeSchema)
	if err != nil {
		return nil, fmt.Errorf("compose failed: %w", err)
	}

	var post ComposedPost
	if err := json.Unmarshal(raw, &post); err != nil {
		return nil, fmt.Errorf("failed to decode composed post: %w", err)
	}
	if post.Text == "" {
		return nil, fmt.Errorf("compose returned empty post text")
	}
	return &post, nil
}

// GenerateImage produces exactly one image for the request.
func (c *OpenAIClient) GenerateImage(ctx context.Context, req *ImageRequest) (*GeneratedImage, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	prompt := req.Prompt
	if req.Style != "" {
		prompt = fmt.Sprintf("%s. Style: %s", prompt, req.Style)
	}

	resp, err := c.client.Images.Generate(ctx, openai.ImageGenerateParams{
		Prompt:         prompt,
		Model:          openai.ImageModel(c.imageModel),
		N:              openai.Int(1),
		Size:           openai.ImageGenerateParamsSize1024x1024,
		ResponseFormat: openai.ImageGenerateParamsResponseFormatB64JSON,
	})
	if err != nil {
		return nil, c.wrapAPIError("image generation", err)
	}
	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return nil, fmt.Errorf("image generation returned no image data")
	}

	return &GeneratedImage{
		B64:    resp.Data[0].B64JSON,
		Prompt: req.Prompt,
		Style:  req.Style,
	}, nil
}

// chat runs a plain chat completion and returns the text content.
func (c *OpenAIClient) chat(ctx context.Context, system, user string) (string, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return "", err
	}

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.chatModel),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		Temperature: openai.Float(openAIDefaultTemperature),
	})
	if err != nil {
		return "", c.wrapAPIError("chat completion", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// structuredChat runs a chat completion and parses + validates the JSON
// content against the given schema.
func (c *OpenAIClient) structuredChat(ctx context.Context, system, user string, schema json.RawMessage) (json.RawMessage, error) {
	content, err := c.chat(ctx, system, user)
	if err != nil {
		return nil, err
	}

	parsed, err := parseStructuredJSON(content)
	if err != nil {
		return nil, err
	}
	if err := validateStructuredJSON(schema, parsed); err != nil {
		return nil, err
	}
	return parsed, nil
}

// wrapAPIError maps SDK errors onto shared sentinels.
func (c *OpenAIClient) wrapAPIError(op string, err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusTooManyRequests:
			return fmt.Errorf("%s: %w", op, ErrQuotaExceeded)
		case http.StatusUnauthorized:
			return fmt.Errorf("%s: invalid OpenAI API key: %w", op, err)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
