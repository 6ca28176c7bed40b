package workflow

import "time"

// Event is one discrete status change emitted during a run. A run's event
// stream is finite and closed when the run ends; the engine does not
// depend on any particular subscriber.
type Event struct {
	RunID   string    `json:"run_id"`
	StageID string    `json:"stage_id"`
	Kind    Kind      `json:"kind"`
	Status  Status    `json:"status"`
	Error   string    `json:"error,omitempty"`
	At      time.Time `json:"at"`
}
