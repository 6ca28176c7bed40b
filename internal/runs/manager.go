// Package runs tracks workflow executions: one run in flight at a time,
// with a bounded history of finished runs and their event streams.
package runs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/driftpost/driftpost/internal/workflow"
)

// Sentinel errors for run management.
var (
	// ErrRunInFlight rejects a start while another run is executing.
	ErrRunInFlight = errors.New("a run is already in progress")

	// ErrRunNotFound is returned for lookups of unknown run ids.
	ErrRunNotFound = errors.New("run not found")
)

// State is the lifecycle state of a tracked run.
type State string

const (
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Record is the tracked history of one run.
type Record struct {
	ID         string            `json:"id"`
	State      State             `json:"state"`
	Result     *workflow.Result  `json:"result,omitempty"`
	Events     []workflow.Event  `json:"events,omitempty"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at,omitzero"`
}

// maxHistory bounds how many finished runs are kept.
const maxHistory = 50

// Manager serializes runs over one registry and retains their outcomes.
type Manager struct {
	engine   *workflow.Engine
	registry *workflow.Registry
	logger   *slog.Logger

	mu      sync.Mutex
	active  string
	records map[string]*Record
	order   []string
	wg      sync.WaitGroup
}

// NewManager creates a run manager over the given engine and registry.
func NewManager(engine *workflow.Engine, registry *workflow.Registry, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		engine:   engine,
		registry: registry,
		logger:   logger,
		records:  make(map[string]*Record),
	}
}

// Start launches a run in the background. It fails with ErrRunInFlight if
// another run has not finished yet. The returned record is the initial
// snapshot; poll Get for progress.
func (m *Manager) Start(ctx context.Context, opts workflow.RunOptions) (Record, error) {
	m.mu.Lock()
	if m.active != "" {
		active := m.active
		m.mu.Unlock()
		return Record{}, fmt.Errorf("%w: %s", ErrRunInFlight, active)
	}

	run, err := m.engine.NewRun(m.registry, opts)
	if err != nil {
		m.mu.Unlock()
		return Record{}, err
	}

	rec := &Record{
		ID:        run.ID(),
		State:     StateRunning,
		StartedAt: time.Now(),
	}
	m.active = rec.ID
	m.records[rec.ID] = rec
	m.order = append(m.order, rec.ID)
	m.trimLocked()
	snapshot := cloneRecord(rec)
	m.mu.Unlock()

	m.wg.Add(1)
	go m.execute(ctx, run)

	return snapshot, nil
}

// RunSync executes a run and blocks until it finishes. Used by the CLI
// path where there is nothing else to do but wait.
func (m *Manager) RunSync(ctx context.Context, opts workflow.RunOptions) (Record, error) {
	rec, err := m.Start(ctx, opts)
	if err != nil {
		return Record{}, err
	}
	m.wg.Wait()
	return m.Get(rec.ID)
}

// execute drives the run to completion and folds its events and result
// into the record.
func (m *Manager) execute(ctx context.Context, run *workflow.Run) {
	defer m.wg.Done()

	id := run.ID()
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for ev := range run.Events() {
			m.mu.Lock()
			if rec, ok := m.records[id]; ok {
				rec.Events = append(rec.Events, ev)
			}
			m.mu.Unlock()
		}
	}()

	result, err := run.Execute(ctx)
	<-drained

	m.mu.Lock()
	defer m.mu.Unlock()
	m.active = ""
	rec, ok := m.records[id]
	if !ok {
		return
	}
	rec.Result = result
	rec.FinishedAt = time.Now()
	if err != nil {
		rec.State = StateFailed
		m.logger.Warn("run failed", "run_id", id, "error", err)
	} else {
		rec.State = StateCompleted
		m.logger.Info("run finished", "run_id", id)
	}
}

// Get returns a snapshot of the record with the given id.
func (m *Manager) Get(id string) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return Record{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return cloneRecord(rec), nil
}

// Events returns the events recorded so far for the given run.
func (m *Manager) Events(id string) ([]workflow.Event, error) {
	rec, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	return rec.Events, nil
}

// List returns snapshots of every tracked run, oldest first.
func (m *Manager) List() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, 0, len(m.order))
	for _, id := range m.order {
		if rec, ok := m.records[id]; ok {
			out = append(out, cloneRecord(rec))
		}
	}
	return out
}

// Active returns the id of the run in flight, if any.
func (m *Manager) Active() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active, m.active != ""
}

// Wait blocks until the run in flight, if any, finishes.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// trimLocked drops the oldest finished records past the history bound.
// Caller must hold the lock.
func (m *Manager) trimLocked() {
	for len(m.order) > maxHistory {
		oldest := m.order[0]
		if oldest == m.active {
			break
		}
		m.order = m.order[1:]
		delete(m.records, oldest)
	}
}

func cloneRecord(rec *Record) Record {
	c := *rec
	c.Events = append([]workflow.Event(nil), rec.Events...)
	return c
}
