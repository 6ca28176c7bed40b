package workflow

import (
	"fmt"

	"github.com/driftpost/driftpost/internal/providers"
)

// ApplyPlan applies a planner's stage selection and config suggestions to
// the registry. Mandatory stages stay enabled regardless of the plan, and
// unknown stage names are rejected before anything is changed.
func ApplyPlan(reg *Registry, plan *providers.WorkflowPlan) error {
	if plan == nil {
		return fmt.Errorf("nil plan")
	}

	for name := range plan.Stages {
		if !Kind(name).Valid() {
			return fmt.Errorf("plan references unknown stage %q", name)
		}
	}
	for name := range plan.Configs {
		if !Kind(name).Valid() {
			return fmt.Errorf("plan configures unknown stage %q", name)
		}
	}

	for name, enabled := range plan.Stages {
		kind := Kind(name)
		if kind.Mandatory() {
			continue
		}
		stage, err := reg.StageByKind(kind)
		if err != nil {
			return err
		}
		if err := reg.SetEnabled(stage.ID, enabled); err != nil {
			return err
		}
	}

	for name, cfg := range plan.Configs {
		if len(cfg) == 0 {
			continue
		}
		stage, err := reg.StageByKind(Kind(name))
		if err != nil {
			return err
		}
		if err := reg.UpdateConfig(stage.ID, cfg); err != nil {
			return err
		}
	}

	return nil
}
