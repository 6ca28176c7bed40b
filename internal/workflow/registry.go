package workflow

import (
	"fmt"
	"maps"
	"sync"

	"github.com/google/uuid"
)

// stageDefaults is the declared default state a stage returns to on Reset.
type stageDefaults struct {
	enabled bool
	config  map[string]any
}

// Registry holds the ordered set of stages and their enable/config state.
// The registry's order is the execution order; INPUT and OUTPUT are
// mandatory anchors. All access is guarded so config edits from outside a
// run are last-writer-wins and cannot corrupt the next run.
type Registry struct {
	mu       sync.RWMutex
	stages   []*Stage
	defaults map[string]stageDefaults // keyed by stage id
}

// NewRegistry creates a registry with the canonical seven-stage pipeline.
func NewRegistry() *Registry {
	r := &Registry{defaults: make(map[string]stageDefaults)}

	for _, kind := range Kinds {
		stage := &Stage{
			ID:      uuid.New().String(),
			Kind:    kind,
			Enabled: defaultEnabled(kind),
			Config:  defaultConfig(kind),
			Status:  StatusIdle,
		}
		r.stages = append(r.stages, stage)
		r.defaults[stage.ID] = stageDefaults{
			enabled: stage.Enabled,
			config:  maps.Clone(stage.Config),
		}
	}
	return r
}

func defaultEnabled(kind Kind) bool {
	switch kind {
	case KindVisual, KindPublish:
		return false
	default:
		return true
	}
}

func defaultConfig(kind Kind) map[string]any {
	switch kind {
	case KindCompose:
		return map[string]any{
			ConfigTone:     "Professional",
			ConfigLanguage: "English",
			ConfigLength:   "Medium",
		}
	case KindVisual:
		return map[string]any{
			ConfigImageCount: 1,
			ConfigImageStyle: "",
		}
	case KindPublish:
		return map[string]any{
			ConfigVisibility: "PUBLIC",
		}
	default:
		return map[string]any{}
	}
}

// Stages returns a copy of every stage in registry order.
func (r *Registry) Stages() []Stage {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Stage, 0, len(r.stages))
	for _, s := range r.stages {
		out = append(out, s.clone())
	}
	return out
}

// Stage returns a copy of the stage with the given id.
func (r *Registry) Stage(id string) (Stage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := r.find(id)
	if s == nil {
		return Stage{}, fmt.Errorf("%w: %s", ErrStageNotFound, id)
	}
	return s.clone(), nil
}

// StageByKind returns a copy of the first stage of the given kind.
func (r *Registry) StageByKind(kind Kind) (Stage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.stages {
		if s.Kind == kind {
			return s.clone(), nil
		}
	}
	return Stage{}, fmt.Errorf("%w: kind %s", ErrStageNotFound, kind)
}

// Toggle flips the enabled flag of a non-mandatory stage.
func (r *Registry) Toggle(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.find(id)
	if s == nil {
		return fmt.Errorf("%w: %s", ErrStageNotFound, id)
	}
	if s.Kind.Mandatory() {
		return fmt.Errorf("%w: %s", ErrMandatoryStage, s.Kind)
	}
	s.Enabled = !s.Enabled
	return nil
}

// SetEnabled sets the enabled flag of a non-mandatory stage directly.
func (r *Registry) SetEnabled(id string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.find(id)
	if s == nil {
		return fmt.Errorf("%w: %s", ErrStageNotFound, id)
	}
	if s.Kind.Mandatory() {
		return fmt.Errorf("%w: %s", ErrMandatoryStage, s.Kind)
	}
	s.Enabled = enabled
	return nil
}

// UpdateConfig merges a partial config into the stage's config map.
// Status and output are untouched.
func (r *Registry) UpdateConfig(id string, partial map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.find(id)
	if s == nil {
		return fmt.Errorf("%w: %s", ErrStageNotFound, id)
	}
	if s.Config == nil {
		s.Config = make(map[string]any, len(partial))
	}
	maps.Copy(s.Config, partial)
	return nil
}

// Reset restores every stage to its declared default enabled flag and
// config, and clears status, output and error. Idempotent.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.stages {
		def := r.defaults[s.ID]
		s.Enabled = def.enabled
		s.Config = maps.Clone(def.config)
		s.Status = StatusIdle
		s.Output = nil
		s.Error = ""
	}
}

// ActiveOrder returns copies of the enabled stages in registry order.
// It always begins with INPUT and ends with OUTPUT since both are
// mandatory and cannot be disabled.
func (r *Registry) ActiveOrder() []Stage {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Stage, 0, len(r.stages))
	for _, s := range r.stages {
		if s.Enabled {
			out = append(out, s.clone())
		}
	}
	return out
}

// Connections derives the adjacency pairs of the active order, used by the
// UI layer to draw connectors between enabled stages.
func (r *Registry) Connections() [][2]string {
	active := r.ActiveOrder()
	if len(active) < 2 {
		return nil
	}
	pairs := make([][2]string, 0, len(active)-1)
	for i := 1; i < len(active); i++ {
		pairs = append(pairs, [2]string{active[i-1].ID, active[i].ID})
	}
	return pairs
}

// clearRunState resets status, output and error on every stage without
// touching enabled flags or configs. Called by the sequencer at run start.
func (r *Registry) clearRunState() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.stages {
		s.Status = StatusIdle
		s.Output = nil
		s.Error = ""
	}
}

// setStatus transitions a stage's run state.
func (r *Registry) setStatus(id string, status Status, errMsg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s := r.find(id); s != nil {
		s.Status = status
		s.Error = errMsg
	}
}

// setOutput records a stage's output payload.
func (r *Registry) setOutput(id string, output any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s := r.find(id); s != nil {
		s.Output = output
	}
}

// stageSnapshot returns a copy of the stage for dispatch: the sequencer
// reads config through this so concurrent edits cannot tear mid-stage.
func (r *Registry) stageSnapshot(id string) (Stage, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := r.find(id)
	if s == nil {
		return Stage{}, false
	}
	return s.clone(), true
}

// find locates a stage by id. Caller must hold the lock.
func (r *Registry) find(id string) *Stage {
	for _, s := range r.stages {
		if s.ID == id {
			return s
		}
	}
	return nil
}
