package endpoints

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/driftpost/driftpost/internal/api"
	"github.com/driftpost/driftpost/internal/runs"
	"github.com/driftpost/driftpost/internal/svcctx"
	"github.com/driftpost/driftpost/internal/workflow"
)

// StartRunRequest is the body for POST /workflow/run.
type StartRunRequest struct {
	Topic          string `json:"topic,omitempty"`
	ReferenceImage string `json:"reference_image,omitempty"`
}

// StartRunEndpoint handles POST /workflow/run. Only one run may be in
// flight; a second start while one is executing returns 409.
type StartRunEndpoint struct{}

func (e *StartRunEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/workflow/run", e.handler
}

func (e *StartRunEndpoint) RequiresInit() bool { return true }

func (e *StartRunEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	var req StartRunRequest
	if r.Body != nil {
		// An empty body is fine; the run then uses whatever the input
		// stage already has configured. A malformed one is not.
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
	}

	opts := workflow.RunOptions{
		Topic:          req.Topic,
		ReferenceImage: req.ReferenceImage,
	}
	// A persisted connection flows into the run automatically.
	if flow := svcctx.AuthFlowFrom(r.Context()); flow != nil {
		if token, err := flow.Token(); err == nil {
			opts.AuthToken = token
		}
	}

	runMgr := svcctx.RunsFrom(r.Context())
	// The run outlives this request; detach from its cancellation.
	rec, err := runMgr.Start(context.WithoutCancel(r.Context()), opts)
	if err != nil {
		switch {
		case errors.Is(err, runs.ErrRunInFlight):
			writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, workflow.ErrStageNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusAccepted, rec)
}

func (e *StartRunEndpoint) Command(getServerURL func() string) *cobra.Command {
	var topic, referenceImage string
	var wait bool
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a workflow run",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var rec runs.Record
			req := StartRunRequest{Topic: topic, ReferenceImage: referenceImage}
			if err := client.Post(cmd.Context(), "/workflow/run", req, &rec); err != nil {
				return err
			}
			if !wait {
				return api.Output(rec)
			}
			// Poll until the run leaves the running state.
			for rec.State == runs.StateRunning {
				select {
				case <-cmd.Context().Done():
					return cmd.Context().Err()
				case <-time.After(time.Second):
				}
				if err := client.Get(cmd.Context(), "/workflow/runs/"+rec.ID, &rec); err != nil {
					return err
				}
			}
			return api.Output(rec)
		},
	}
	cmd.Flags().StringVar(&topic, "topic", "", "Topic to post about")
	cmd.Flags().StringVar(&referenceImage, "reference-image", "", "Base64 reference image")
	cmd.Flags().BoolVar(&wait, "wait", false, "Block until the run finishes")
	return cmd
}

// GetRunEndpoint handles GET /workflow/runs/{id}.
type GetRunEndpoint struct{}

func (e *GetRunEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/workflow/runs/{id}", e.handler
}

func (e *GetRunEndpoint) RequiresInit() bool { return true }

func (e *GetRunEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	runMgr := svcctx.RunsFrom(r.Context())
	rec, err := runMgr.Get(r.PathValue("id"))
	if err != nil {
		writeRunError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (e *GetRunEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "get <run-id>",
		Short: "Get a run's state and result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var rec runs.Record
			if err := client.Get(cmd.Context(), "/workflow/runs/"+args[0], &rec); err != nil {
				return err
			}
			return api.Output(rec)
		},
	}
}

// RunEventsEndpoint handles GET /workflow/runs/{id}/events.
type RunEventsEndpoint struct{}

func (e *RunEventsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/workflow/runs/{id}/events", e.handler
}

func (e *RunEventsEndpoint) RequiresInit() bool { return true }

func (e *RunEventsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	runMgr := svcctx.RunsFrom(r.Context())
	events, err := runMgr.Events(r.PathValue("id"))
	if err != nil {
		writeRunError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (e *RunEventsEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "events <run-id>",
		Short: "List a run's status change events",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var events []workflow.Event
			path := fmt.Sprintf("/workflow/runs/%s/events", args[0])
			if err := client.Get(cmd.Context(), path, &events); err != nil {
				return err
			}
			return api.Output(events)
		},
	}
}

// ListRunsEndpoint handles GET /workflow/runs.
type ListRunsEndpoint struct{}

func (e *ListRunsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/workflow/runs", e.handler
}

func (e *ListRunsEndpoint) RequiresInit() bool { return true }

func (e *ListRunsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	runMgr := svcctx.RunsFrom(r.Context())
	writeJSON(w, http.StatusOK, runMgr.List())
}

func (e *ListRunsEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List tracked runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var recs []runs.Record
			if err := client.Get(cmd.Context(), "/workflow/runs", &recs); err != nil {
				return err
			}
			return api.Output(recs)
		},
	}
}

func writeRunError(w http.ResponseWriter, err error) {
	if errors.Is(err, runs.ErrRunNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}
