package workflow

import "errors"

// Sentinel errors for registry and run operations.
var (
	// ErrStageNotFound is returned for operations on an unknown stage id.
	ErrStageNotFound = errors.New("stage not found")

	// ErrMandatoryStage is returned when toggling an INPUT or OUTPUT stage.
	ErrMandatoryStage = errors.New("mandatory stage cannot be toggled")

	// ErrMissingInput rejects a run with no topic and no reference image.
	ErrMissingInput = errors.New("nothing to work with: set a topic or attach a reference image")

	// ErrNoContent is returned when a stage needs composed or source text
	// and none is available in the context.
	ErrNoContent = errors.New("no content available")

	// ErrNoImagePrompt is returned when the visual stage has neither an
	// image prompt nor a topic to fall back to.
	ErrNoImagePrompt = errors.New("no image prompt available")

	// ErrAllImagesFailed is returned when every image attempt failed.
	ErrAllImagesFailed = errors.New("all image generations failed")

	// ErrNotAuthenticated is returned when publish runs without a token.
	ErrNotAuthenticated = errors.New("not authenticated: connect your account before publishing")

	// ErrStageDisabled guards against executing a disabled stage. The
	// active order excludes disabled stages, so hitting this means the
	// registry changed underneath the run.
	ErrStageDisabled = errors.New("cannot execute a disabled stage")

	// ErrStageLimit is the safety ceiling on stages processed per run.
	ErrStageLimit = errors.New("stage limit exceeded")

	// ErrRunConsumed is returned when a Run is executed more than once.
	ErrRunConsumed = errors.New("run already executed")
)
