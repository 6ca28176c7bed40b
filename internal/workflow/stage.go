// Package workflow implements the sequential content pipeline engine:
// an ordered registry of enable/disable-able stages, a shared context
// accumulated across stages, and a sequencer that drives one run at a time.
package workflow

import "maps"

// Kind identifies what a pipeline stage does.
type Kind string

const (
	KindInput    Kind = "input"
	KindResearch Kind = "research"
	KindCompose  Kind = "compose"
	KindVisual   Kind = "visual"
	KindPreview  Kind = "preview"
	KindPublish  Kind = "publish"
	KindOutput   Kind = "output"
)

// Kinds is the canonical pipeline order.
var Kinds = []Kind{
	KindInput,
	KindResearch,
	KindCompose,
	KindVisual,
	KindPreview,
	KindPublish,
	KindOutput,
}

// Mandatory reports whether the kind is a pipeline anchor that can never
// be disabled.
func (k Kind) Mandatory() bool {
	return k == KindInput || k == KindOutput
}

// Valid reports whether k is a known stage kind.
func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// Status is the run-time state of a stage.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// Stage is one step of the pipeline. Status, Output and Error are owned by
// the sequencer during a run; Enabled and Config are edited between runs.
type Stage struct {
	ID      string         `json:"id"`
	Kind    Kind           `json:"kind"`
	Enabled bool           `json:"enabled"`
	Config  map[string]any `json:"config"`
	Status  Status         `json:"status"`
	Output  any            `json:"output,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// clone returns a deep-enough copy for handing out of the registry.
// Output payloads are immutable once written, so a shallow copy suffices.
func (s *Stage) clone() Stage {
	c := *s
	c.Config = maps.Clone(s.Config)
	return c
}

// Config keys recognized per stage kind. Unrecognized keys are ignored.
const (
	ConfigTopic          = "topic"           // input
	ConfigReferenceImage = "reference_image" // input
	ConfigAuthToken      = "auth_token"      // input, publish
	ConfigTone           = "tone"            // compose
	ConfigLanguage       = "language"        // compose
	ConfigLength         = "length"          // compose
	ConfigImageCount     = "count"           // visual
	ConfigImageStyle     = "style"           // visual
	ConfigVisibility     = "visibility"      // publish
)

// configString reads a string config value, empty if absent or mistyped.
func configString(cfg map[string]any, key string) string {
	v, ok := cfg[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// configInt reads an integer config value, tolerating JSON float decoding.
func configInt(cfg map[string]any, key string, fallback int) int {
	v, ok := cfg[key]
	if !ok {
		return fallback
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return fallback
	}
}
