package endpoints

import (
	"github.com/driftpost/driftpost/internal/api"
)

// All returns all endpoint instances.
func All() []api.Endpoint {
	return []api.Endpoint{
		// Health endpoints
		&HealthEndpoint{},
		&StatusEndpoint{},

		// Workflow endpoints
		&GetWorkflowEndpoint{},
		&ToggleStageEndpoint{},
		&UpdateStageConfigEndpoint{},
		&ResetWorkflowEndpoint{},
		&PlanWorkflowEndpoint{},

		// Run endpoints
		&StartRunEndpoint{},
		&GetRunEndpoint{},
		&RunEventsEndpoint{},
		&ListRunsEndpoint{},

		// Auth endpoints
		&LoginEndpoint{},
		&CallbackEndpoint{},
		&AuthStatusEndpoint{},
		&LogoutEndpoint{},
	}
}
