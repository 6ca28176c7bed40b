package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/driftpost/driftpost/internal/providers"
)

// Collaborators are the external capabilities the sequencer dispatches to.
// Any of them may be nil; a stage that needs a missing collaborator fails
// with a configuration error.
type Collaborators struct {
	Researcher providers.Researcher
	Composer   providers.Composer
	Images     providers.ImageGenerator
	Publisher  providers.Publisher
}

// EngineConfig configures a new Engine.
type EngineConfig struct {
	Collaborators Collaborators

	// StageDelay is the fixed courtesy delay between stages.
	StageDelay time.Duration

	// ImageDelay is the fixed delay between per-image calls in VISUAL.
	ImageDelay time.Duration

	// MaxStages is the safety ceiling on stages processed per run.
	MaxStages int

	// EventBuffer sizes each run's event channel.
	EventBuffer int

	Logger *slog.Logger
}

// Engine drives runs over a stage registry. One engine serves many runs,
// but runs over the same registry must not overlap; callers serialize
// them (see the runs manager).
type Engine struct {
	collab      Collaborators
	stageDelay  time.Duration
	imageDelay  time.Duration
	maxStages   int
	eventBuffer int
	logger      *slog.Logger
}

// NewEngine creates a new Engine.
func NewEngine(cfg EngineConfig) *Engine {
	if cfg.MaxStages <= 0 {
		cfg.MaxStages = 2 * len(Kinds)
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 64
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Engine{
		collab:      cfg.Collaborators,
		stageDelay:  cfg.StageDelay,
		imageDelay:  cfg.ImageDelay,
		maxStages:   cfg.MaxStages,
		eventBuffer: cfg.EventBuffer,
		logger:      cfg.Logger,
	}
}

// RunOptions seed the INPUT stage for one run. Non-empty fields are merged
// into the INPUT stage's config before validation.
type RunOptions struct {
	Topic          string
	ReferenceImage string
	AuthToken      string
}

// Run owns one end-to-end execution: its registry, its context accumulator
// and its finite event stream. A Run executes exactly once; re-running
// after a failure means creating a new Run, which always restarts from
// INPUT.
type Run struct {
	id       string
	engine   *Engine
	registry *Registry
	acc      Context
	events   chan Event
	consumed atomic.Bool
}

// Result is the outcome of one run.
type Result struct {
	RunID        string    `json:"run_id"`
	Success      bool      `json:"success"`
	FailedStage  Kind      `json:"failed_stage,omitempty"`
	ErrorMessage string    `json:"error,omitempty"`
	Context      Context   `json:"context"`
	Stages       []Stage   `json:"stages"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
}

// NewRun creates a run over the given registry.
func (e *Engine) NewRun(reg *Registry, opts RunOptions) (*Run, error) {
	input, err := reg.StageByKind(KindInput)
	if err != nil {
		return nil, err
	}

	seed := make(map[string]any)
	if opts.Topic != "" {
		seed[ConfigTopic] = opts.Topic
	}
	if opts.ReferenceImage != "" {
		seed[ConfigReferenceImage] = opts.ReferenceImage
	}
	if opts.AuthToken != "" {
		seed[ConfigAuthToken] = opts.AuthToken
	}
	if len(seed) > 0 {
		if err := reg.UpdateConfig(input.ID, seed); err != nil {
			return nil, err
		}
	}

	return &Run{
		id:       uuid.New().String(),
		engine:   e,
		registry: reg,
		events:   make(chan Event, e.eventBuffer),
	}, nil
}

// ID returns the run identifier.
func (r *Run) ID() string { return r.id }

// Events returns the run's status-change stream. It is closed when the
// run finishes; a run that was never executed never closes it.
func (r *Run) Events() <-chan Event { return r.events }

// Execute walks the active stage order. It blocks until the run completes,
// fails, or the context is cancelled. The returned Result is always
// non-nil once execution started.
func (r *Run) Execute(ctx context.Context) (*Result, error) {
	if !r.consumed.CompareAndSwap(false, true) {
		return nil, ErrRunConsumed
	}
	defer close(r.events)

	e := r.engine
	result := &Result{RunID: r.id, StartedAt: time.Now()}

	input, err := r.registry.StageByKind(KindInput)
	if err != nil {
		return r.finish(result, KindInput, err)
	}
	if !input.Enabled {
		return r.finish(result, KindInput, fmt.Errorf("input stage is disabled"))
	}
	if configString(input.Config, ConfigTopic) == "" &&
		configString(input.Config, ConfigReferenceImage) == "" {
		r.registry.setStatus(input.ID, StatusIdle, ErrMissingInput.Error())
		return r.finish(result, KindInput, ErrMissingInput)
	}

	r.registry.clearRunState()
	r.acc = Context{}

	active := r.registry.ActiveOrder()
	if len(active) > e.maxStages {
		return r.finish(result, "", fmt.Errorf("%w: %d active stages", ErrStageLimit, len(active)))
	}

	e.logger.Info("run started", "run_id", r.id, "stages", len(active))

	for i, entry := range active {
		stage, ok := r.registry.stageSnapshot(entry.ID)
		if !ok {
			return r.finish(result, entry.Kind, fmt.Errorf("%w: %s", ErrStageNotFound, entry.ID))
		}
		if !stage.Enabled {
			// Unreachable through ActiveOrder; guards a registry edited
			// underneath the run.
			return r.finish(result, stage.Kind, ErrStageDisabled)
		}

		r.setStage(stage, StatusRunning, "")

		output, err := r.dispatch(ctx, stage)
		if err != nil {
			msg := userMessage(err)
			r.setStage(stage, StatusError, msg)
			e.logger.Warn("stage failed", "run_id", r.id, "stage", stage.Kind, "error", err)
			return r.finish(result, stage.Kind, fmt.Errorf("%s stage: %w", stage.Kind, err))
		}

		r.registry.setOutput(stage.ID, output)
		r.setStage(stage, StatusCompleted, "")
		e.logger.Debug("stage completed", "run_id", r.id, "stage", stage.Kind)

		if i < len(active)-1 && e.stageDelay > 0 {
			if err := sleep(ctx, e.stageDelay); err != nil {
				return r.finish(result, stage.Kind, err)
			}
		}
	}

	e.logger.Info("run completed", "run_id", r.id)
	return r.finish(result, "", nil)
}

// finish seals the result with the final registry and context state.
func (r *Run) finish(result *Result, failed Kind, err error) (*Result, error) {
	result.FinishedAt = time.Now()
	result.Context = r.acc.Snapshot()
	result.Stages = r.registry.Stages()
	if err != nil {
		result.Success = false
		result.FailedStage = failed
		result.ErrorMessage = userMessage(err)
		return result, err
	}
	result.Success = true
	return result, nil
}

// setStage updates a stage's status and emits the matching event.
func (r *Run) setStage(stage Stage, status Status, errMsg string) {
	r.registry.setStatus(stage.ID, status, errMsg)
	ev := Event{
		RunID:   r.id,
		StageID: stage.ID,
		Kind:    stage.Kind,
		Status:  status,
		Error:   errMsg,
		At:      time.Now(),
	}
	select {
	case r.events <- ev:
	default:
		r.engine.logger.Warn("event buffer full, dropping event",
			"run_id", r.id, "stage", stage.Kind, "status", status)
	}
}

// dispatch routes a stage to its handler by kind.
func (r *Run) dispatch(ctx context.Context, stage Stage) (any, error) {
	switch stage.Kind {
	case KindInput:
		return r.runInput(stage)
	case KindResearch:
		return r.runResearch(ctx, stage)
	case KindCompose:
		return r.runCompose(ctx, stage)
	case KindVisual:
		return r.runVisual(ctx, stage)
	case KindPreview:
		return r.runPreview(stage)
	case KindPublish:
		return r.runPublish(ctx, stage)
	case KindOutput:
		return r.runOutput(stage)
	default:
		return nil, fmt.Errorf("unknown stage kind: %s", stage.Kind)
	}
}

// InputSeed is the INPUT stage's output payload.
type InputSeed struct {
	Topic             string `json:"topic,omitempty"`
	HasReferenceImage bool   `json:"has_reference_image"`
	Authenticated     bool   `json:"authenticated"`
}

func (r *Run) runInput(stage Stage) (any, error) {
	r.acc.Topic = configString(stage.Config, ConfigTopic)
	r.acc.ReferenceImage = configString(stage.Config, ConfigReferenceImage)
	if token := configString(stage.Config, ConfigAuthToken); token != "" {
		r.acc.AuthToken = token
	}
	return InputSeed{
		Topic:             r.acc.Topic,
		HasReferenceImage: r.acc.ReferenceImage != "",
		Authenticated:     r.acc.AuthToken != "",
	}, nil
}

func (r *Run) runResearch(ctx context.Context, stage Stage) (any, error) {
	if r.engine.collab.Researcher == nil {
		return nil, fmt.Errorf("no research provider configured")
	}
	if r.acc.Topic == "" {
		return nil, fmt.Errorf("research needs a topic: %w", ErrNoContent)
	}

	res, err := r.engine.collab.Researcher.Research(ctx, r.acc.Topic)
	if err != nil {
		return nil, err
	}
	r.acc.Research = res
	return res, nil
}

func (r *Run) runCompose(ctx context.Context, stage Stage) (any, error) {
	if r.engine.collab.Composer == nil {
		return nil, fmt.Errorf("no compose provider configured")
	}
	source := r.acc.composeSource()
	if source == "" {
		return nil, fmt.Errorf("nothing to compose from: %w", ErrNoContent)
	}

	post, err := r.engine.collab.Composer.Compose(ctx, &providers.ComposeRequest{
		Text:           source,
		Tone:           configString(stage.Config, ConfigTone),
		Language:       configString(stage.Config, ConfigLanguage),
		Length:         configString(stage.Config, ConfigLength),
		ReferenceImage: r.acc.ReferenceImage,
	})
	if err != nil {
		return nil, err
	}
	r.acc.Post = post
	return post, nil
}

func (r *Run) runVisual(ctx context.Context, stage Stage) (any, error) {
	if r.engine.collab.Images == nil {
		return nil, fmt.Errorf("no image provider configured")
	}
	prompt := r.acc.imagePrompt()
	if prompt == "" {
		return nil, ErrNoImagePrompt
	}

	count := configInt(stage.Config, ConfigImageCount, 1)
	if count < 1 {
		count = 1
	}
	style := configString(stage.Config, ConfigImageStyle)

	// Images are requested strictly one at a time: attempt N starts only
	// after attempt N-1 finished, and output order is request order.
	var images []providers.GeneratedImage
	var firstErr error
	for i := 0; i < count; i++ {
		img, err := r.engine.collab.Images.GenerateImage(ctx, &providers.ImageRequest{
			Prompt:         prompt,
			Style:          style,
			ReferenceImage: r.acc.ReferenceImage,
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if firstErr == nil {
				firstErr = err
			}
			r.engine.logger.Warn("image generation attempt failed",
				"run_id", r.id, "attempt", i+1, "error", err)
		} else {
			images = append(images, *img)
		}

		if i < count-1 && r.engine.imageDelay > 0 {
			if err := sleep(ctx, r.engine.imageDelay); err != nil {
				return nil, err
			}
		}
	}

	// Partial failure is tolerated; zero successes is not.
	if len(images) == 0 {
		if firstErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrAllImagesFailed, firstErr)
		}
		return nil, ErrAllImagesFailed
	}

	r.acc.Images = append(r.acc.Images, images...)
	return images, nil
}

func (r *Run) runPreview(stage Stage) (any, error) {
	// Read-only; renders whatever the context holds so far. Never fails.
	return r.acc.Snapshot(), nil
}

// PostedMarker is the PUBLISH stage's output payload.
type PostedMarker struct {
	Posted     bool   `json:"posted"`
	ExternalID string `json:"external_id"`
	URL        string `json:"url"`
}

func (r *Run) runPublish(ctx context.Context, stage Stage) (any, error) {
	if r.engine.collab.Publisher == nil {
		return nil, fmt.Errorf("no publish provider configured")
	}

	// A token set on the publish stage itself also counts.
	if token := configString(stage.Config, ConfigAuthToken); token != "" && r.acc.AuthToken == "" {
		r.acc.AuthToken = token
	}
	if r.acc.AuthToken == "" {
		return nil, ErrNotAuthenticated
	}
	if r.acc.Post == nil || r.acc.Post.Text == "" {
		return nil, fmt.Errorf("nothing composed to publish: %w", ErrNoContent)
	}

	var imageB64 string
	if len(r.acc.Images) > 0 {
		imageB64 = r.acc.Images[0].B64
	}

	receipt, err := r.engine.collab.Publisher.Publish(ctx, r.acc.AuthToken, &providers.PublishRequest{
		Text:       r.acc.Post.Text,
		ImageB64:   imageB64,
		Visibility: configString(stage.Config, ConfigVisibility),
	})
	if err != nil {
		return nil, fmt.Errorf("publish failed: %w", err)
	}

	return PostedMarker{
		Posted:     true,
		ExternalID: receipt.ExternalID,
		URL:        receipt.URL,
	}, nil
}

func (r *Run) runOutput(stage Stage) (any, error) {
	// Aggregates the whole context for display. Never fails.
	return r.acc.Snapshot(), nil
}

// userMessage rewrites known failure classes into clearer user-facing
// messages; other errors pass through verbatim.
func userMessage(err error) string {
	if providers.IsQuota(err) {
		return "the provider's rate limit was reached; wait a minute and re-run"
	}
	return err.Error()
}

// sleep waits for d or until the context is cancelled.
func sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
