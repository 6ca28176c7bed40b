package endpoints

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/driftpost/driftpost/internal/api"
	"github.com/driftpost/driftpost/internal/svcctx"
	"github.com/driftpost/driftpost/internal/workflow"
)

// WorkflowResponse is the stage graph returned by GET /workflow.
type WorkflowResponse struct {
	Stages      []workflow.Stage `json:"stages"`
	Connections [][2]string      `json:"connections"`
}

// GetWorkflowEndpoint handles GET /workflow.
type GetWorkflowEndpoint struct{}

func (e *GetWorkflowEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/workflow", e.handler
}

func (e *GetWorkflowEndpoint) RequiresInit() bool { return true }

func (e *GetWorkflowEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	reg := svcctx.WorkflowFrom(r.Context())
	writeJSON(w, http.StatusOK, WorkflowResponse{
		Stages:      reg.Stages(),
		Connections: reg.Connections(),
	})
}

func (e *GetWorkflowEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "get",
		Short: "Show the stage graph",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp WorkflowResponse
			if err := client.Get(cmd.Context(), "/workflow", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// ToggleStageEndpoint handles POST /workflow/stages/{id}/toggle.
type ToggleStageEndpoint struct{}

func (e *ToggleStageEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/workflow/stages/{id}/toggle", e.handler
}

func (e *ToggleStageEndpoint) RequiresInit() bool { return true }

func (e *ToggleStageEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	reg := svcctx.WorkflowFrom(r.Context())
	id := r.PathValue("id")

	if err := reg.Toggle(id); err != nil {
		writeWorkflowError(w, err)
		return
	}
	stage, err := reg.Stage(id)
	if err != nil {
		writeWorkflowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stage)
}

func (e *ToggleStageEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "toggle <stage-id>",
		Short: "Enable or disable a stage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var stage workflow.Stage
			path := fmt.Sprintf("/workflow/stages/%s/toggle", args[0])
			if err := client.Post(cmd.Context(), path, nil, &stage); err != nil {
				return err
			}
			return api.Output(stage)
		},
	}
}

// UpdateStageConfigEndpoint handles PATCH /workflow/stages/{id}/config.
type UpdateStageConfigEndpoint struct{}

func (e *UpdateStageConfigEndpoint) Route() (string, string, http.HandlerFunc) {
	return "PATCH", "/workflow/stages/{id}/config", e.handler
}

func (e *UpdateStageConfigEndpoint) RequiresInit() bool { return true }

func (e *UpdateStageConfigEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	reg := svcctx.WorkflowFrom(r.Context())
	id := r.PathValue("id")

	var partial map[string]any
	if err := json.NewDecoder(r.Body).Decode(&partial); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if err := reg.UpdateConfig(id, partial); err != nil {
		writeWorkflowError(w, err)
		return
	}
	stage, err := reg.Stage(id)
	if err != nil {
		writeWorkflowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stage)
}

func (e *UpdateStageConfigEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "config <stage-id> <json>",
		Short: "Merge config values into a stage",
		Long: `Merge config values into a stage.

The second argument is a JSON object of config keys, for example:
  driftpost api workflow config <id> '{"tone":"Casual","length":"Short"}'`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var partial map[string]any
			if err := json.Unmarshal([]byte(args[1]), &partial); err != nil {
				return fmt.Errorf("invalid config JSON: %w", err)
			}
			client := api.NewClient(getServerURL())
			var stage workflow.Stage
			path := fmt.Sprintf("/workflow/stages/%s/config", args[0])
			if err := client.Patch(cmd.Context(), path, partial, &stage); err != nil {
				return err
			}
			return api.Output(stage)
		},
	}
}

// ResetWorkflowEndpoint handles POST /workflow/reset.
type ResetWorkflowEndpoint struct{}

func (e *ResetWorkflowEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/workflow/reset", e.handler
}

func (e *ResetWorkflowEndpoint) RequiresInit() bool { return true }

func (e *ResetWorkflowEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	reg := svcctx.WorkflowFrom(r.Context())
	reg.Reset()
	writeJSON(w, http.StatusOK, WorkflowResponse{
		Stages:      reg.Stages(),
		Connections: reg.Connections(),
	})
}

func (e *ResetWorkflowEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Restore all stages to their defaults",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp WorkflowResponse
			if err := client.Post(cmd.Context(), "/workflow/reset", nil, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// PlanRequest is the body for POST /workflow/plan.
type PlanRequest struct {
	Intent            string `json:"intent"`
	Provider          string `json:"provider,omitempty"`
	HasReferenceImage bool   `json:"has_reference_image,omitempty"`
}

// PlanWorkflowEndpoint handles POST /workflow/plan: it asks the content
// provider to pick stages and configs for a free-form intent and applies
// the result to the stage graph.
type PlanWorkflowEndpoint struct{}

func (e *PlanWorkflowEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/workflow/plan", e.handler
}

func (e *PlanWorkflowEndpoint) RequiresInit() bool { return true }

func (e *PlanWorkflowEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	var req PlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if req.Intent == "" {
		writeError(w, http.StatusBadRequest, "intent is required")
		return
	}

	providerName := req.Provider
	registry := svcctx.RegistryFrom(r.Context())
	if providerName == "" {
		names := registry.ListContent()
		if len(names) == 0 {
			writeError(w, http.StatusServiceUnavailable, "no content provider registered")
			return
		}
		providerName = names[0]
	}
	provider, err := registry.GetContent(providerName)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	plan, err := provider.Plan(r.Context(), req.Intent, req.HasReferenceImage)
	if err != nil {
		writeError(w, http.StatusBadGateway, "planning failed: "+err.Error())
		return
	}

	reg := svcctx.WorkflowFrom(r.Context())
	if err := workflow.ApplyPlan(reg, plan); err != nil {
		writeError(w, http.StatusBadGateway, "plan rejected: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, WorkflowResponse{
		Stages:      reg.Stages(),
		Connections: reg.Connections(),
	})
}

func (e *PlanWorkflowEndpoint) Command(getServerURL func() string) *cobra.Command {
	var provider string
	cmd := &cobra.Command{
		Use:   "plan <intent>",
		Short: "Let the content provider arrange the stages for an intent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp WorkflowResponse
			req := PlanRequest{Intent: args[0], Provider: provider}
			if err := client.Post(cmd.Context(), "/workflow/plan", req, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVar(&provider, "provider", "", "Content provider name")
	return cmd
}

// writeWorkflowError maps stage registry errors to HTTP statuses.
func writeWorkflowError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, workflow.ErrStageNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, workflow.ErrMandatoryStage):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
