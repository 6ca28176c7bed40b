package runs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/driftpost/driftpost/internal/providers"
	"github.com/driftpost/driftpost/internal/workflow"
)

func newTestManager(content *providers.MockContent) (*Manager, *workflow.Registry) {
	engine := workflow.NewEngine(workflow.EngineConfig{
		Collaborators: workflow.Collaborators{
			Researcher: content,
			Composer:   content,
			Images:     content,
		},
	})
	reg := workflow.NewRegistry()
	return NewManager(engine, reg, nil), reg
}

func TestRunSync(t *testing.T) {
	content := providers.NewMockContent()
	m, _ := newTestManager(content)

	rec, err := m.RunSync(context.Background(), workflow.RunOptions{Topic: "platform teams"})
	if err != nil {
		t.Fatalf("RunSync: %v", err)
	}
	if rec.State != StateCompleted {
		t.Fatalf("record state = %s, want completed", rec.State)
	}
	if rec.Result == nil || !rec.Result.Success {
		t.Fatalf("record result = %+v, want success", rec.Result)
	}
	if len(rec.Events) == 0 {
		t.Error("record has no events")
	}
	if rec.FinishedAt.IsZero() {
		t.Error("record has no finish time")
	}
	if _, active := m.Active(); active {
		t.Error("manager still reports an active run")
	}
}

func TestStartRejectsConcurrentRun(t *testing.T) {
	content := providers.NewMockContent()
	content.Latency = 100 * time.Millisecond
	m, _ := newTestManager(content)

	first, err := m.Start(context.Background(), workflow.RunOptions{Topic: "first"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := m.Start(context.Background(), workflow.RunOptions{Topic: "second"}); !errors.Is(err, ErrRunInFlight) {
		t.Errorf("second Start error = %v, want ErrRunInFlight", err)
	}

	m.Wait()

	// Once the first run finishes, a new one is accepted.
	if _, err := m.Start(context.Background(), workflow.RunOptions{Topic: "third"}); err != nil {
		t.Errorf("Start after finish: %v", err)
	}
	m.Wait()

	rec, err := m.Get(first.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.State != StateCompleted {
		t.Errorf("first run state = %s, want completed", rec.State)
	}
}

func TestFailedRunRecorded(t *testing.T) {
	content := providers.NewMockContent()
	content.ShouldFail = true
	m, _ := newTestManager(content)

	rec, err := m.RunSync(context.Background(), workflow.RunOptions{Topic: "doomed"})
	if err != nil {
		t.Fatalf("RunSync: %v", err)
	}
	if rec.State != StateFailed {
		t.Fatalf("record state = %s, want failed", rec.State)
	}
	if rec.Result == nil || rec.Result.Success {
		t.Fatalf("record result = %+v, want failure", rec.Result)
	}
	if rec.Result.FailedStage != workflow.KindResearch {
		t.Errorf("failed stage = %s, want research", rec.Result.FailedStage)
	}

	events, err := m.Events(rec.ID)
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	var sawError bool
	for _, ev := range events {
		if ev.Status == workflow.StatusError {
			sawError = true
		}
	}
	if !sawError {
		t.Error("event stream has no error event")
	}
}

func TestGetUnknownRun(t *testing.T) {
	m, _ := newTestManager(providers.NewMockContent())
	if _, err := m.Get("nope"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("Get unknown error = %v, want ErrRunNotFound", err)
	}
}

func TestListOrdersOldestFirst(t *testing.T) {
	content := providers.NewMockContent()
	m, _ := newTestManager(content)

	var ids []string
	for _, topic := range []string{"one", "two", "three"} {
		rec, err := m.RunSync(context.Background(), workflow.RunOptions{Topic: topic})
		if err != nil {
			t.Fatalf("RunSync(%s): %v", topic, err)
		}
		ids = append(ids, rec.ID)
	}

	list := m.List()
	if len(list) != len(ids) {
		t.Fatalf("list length = %d, want %d", len(list), len(ids))
	}
	for i, rec := range list {
		if rec.ID != ids[i] {
			t.Errorf("list[%d] = %s, want %s", i, rec.ID, ids[i])
		}
	}
}
