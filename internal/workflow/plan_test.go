package workflow

import (
	"testing"

	"github.com/driftpost/driftpost/internal/providers"
)

func TestApplyPlan(t *testing.T) {
	reg := NewRegistry()

	plan := &providers.WorkflowPlan{
		Stages: map[string]bool{
			"research": false,
			"visual":   true,
			"input":    false, // mandatory, must be ignored
		},
		Configs: map[string]map[string]any{
			"compose": {ConfigTone: "Witty"},
			"visual":  {ConfigImageCount: 3},
		},
	}
	if err := ApplyPlan(reg, plan); err != nil {
		t.Fatalf("ApplyPlan: %v", err)
	}

	research, _ := reg.StageByKind(KindResearch)
	if research.Enabled {
		t.Error("research still enabled after plan disabled it")
	}
	visual, _ := reg.StageByKind(KindVisual)
	if !visual.Enabled {
		t.Error("visual not enabled by plan")
	}
	if got := configInt(visual.Config, ConfigImageCount, 0); got != 3 {
		t.Errorf("visual count = %d, want 3", got)
	}
	input, _ := reg.StageByKind(KindInput)
	if !input.Enabled {
		t.Error("plan disabled the mandatory input stage")
	}
	compose, _ := reg.StageByKind(KindCompose)
	if got := compose.Config[ConfigTone]; got != "Witty" {
		t.Errorf("compose tone = %v, want Witty", got)
	}
}

func TestApplyPlanRejectsUnknownStage(t *testing.T) {
	reg := NewRegistry()
	before := reg.Stages()

	plan := &providers.WorkflowPlan{
		Stages: map[string]bool{"research": false, "teleport": true},
	}
	if err := ApplyPlan(reg, plan); err == nil {
		t.Fatal("ApplyPlan accepted an unknown stage name")
	}

	// Nothing changed.
	after := reg.Stages()
	for i := range before {
		if before[i].Enabled != after[i].Enabled {
			t.Errorf("stage %s enabled changed despite rejected plan", before[i].Kind)
		}
	}
}

func TestApplyPlanNil(t *testing.T) {
	if err := ApplyPlan(NewRegistry(), nil); err == nil {
		t.Error("ApplyPlan(nil) did not error")
	}
}
