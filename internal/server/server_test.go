package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/driftpost/driftpost/internal/auth"
	"github.com/driftpost/driftpost/internal/config"
	"github.com/driftpost/driftpost/internal/home"
	"github.com/driftpost/driftpost/internal/runs"
	"github.com/driftpost/driftpost/internal/server/endpoints"
	"github.com/driftpost/driftpost/internal/workflow"
)

// TestServer_Lifecycle starts a real server on a test port and exercises
// the HTTP surface end to end. No provider credentials are configured, so
// run execution fails at the first generation stage; everything else works.
func TestServer_Lifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "config.yaml")
	configContent := `
engine:
  stage_delay: 1ms
  image_delay: 1ms
server:
  port: 18480
`
	if err := os.WriteFile(configFile, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	mgr, err := config.NewManager(configFile)
	if err != nil {
		t.Fatalf("config.NewManager: %v", err)
	}
	h, err := home.New(filepath.Join(tmpDir, "home"))
	if err != nil {
		t.Fatalf("home.New: %v", err)
	}

	srv, err := New(Config{
		Host:          "127.0.0.1",
		Port:          18480,
		ConfigManager: mgr,
		Home:          h,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	serverCtx, serverCancel := context.WithCancel(ctx)
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.Start(serverCtx)
	}()
	defer func() {
		serverCancel()
		<-serverErr
	}()

	baseURL := "http://127.0.0.1:18480"
	if err := waitForServer(ctx, baseURL, 10*time.Second); err != nil {
		t.Fatalf("server did not start: %v", err)
	}

	t.Run("health_endpoint", func(t *testing.T) {
		var health endpoints.HealthResponse
		getJSON(t, baseURL+"/health", http.StatusOK, &health)
		if health.Status != "ok" {
			t.Errorf("health.Status = %q, want ok", health.Status)
		}
	})

	t.Run("status_endpoint", func(t *testing.T) {
		var status endpoints.StatusResponse
		getJSON(t, baseURL+"/status", http.StatusOK, &status)
		if status.Server != "running" {
			t.Errorf("status.Server = %q, want running", status.Server)
		}
		if status.Connected {
			t.Error("status.Connected = true with no saved token")
		}
	})

	t.Run("workflow_graph", func(t *testing.T) {
		var wf endpoints.WorkflowResponse
		getJSON(t, baseURL+"/workflow", http.StatusOK, &wf)
		if len(wf.Stages) != len(workflow.Kinds) {
			t.Fatalf("stage count = %d, want %d", len(wf.Stages), len(workflow.Kinds))
		}
		if wf.Stages[0].Kind != workflow.KindInput {
			t.Errorf("first stage = %s, want input", wf.Stages[0].Kind)
		}
	})

	t.Run("toggle_and_config", func(t *testing.T) {
		var wf endpoints.WorkflowResponse
		getJSON(t, baseURL+"/workflow", http.StatusOK, &wf)

		var researchID, inputID string
		for _, s := range wf.Stages {
			switch s.Kind {
			case workflow.KindResearch:
				researchID = s.ID
			case workflow.KindInput:
				inputID = s.ID
			}
		}

		// Mandatory stages cannot be toggled.
		resp := postJSON(t, baseURL+"/workflow/stages/"+inputID+"/toggle", nil)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("toggle input status = %d, want 400", resp.StatusCode)
		}
		resp.Body.Close()

		// Optional stages can.
		var stage workflow.Stage
		resp = postJSON(t, baseURL+"/workflow/stages/"+researchID+"/toggle", nil)
		decodeBody(t, resp, http.StatusOK, &stage)
		if stage.Enabled {
			t.Error("research still enabled after toggle")
		}

		// Config merge through PATCH.
		req, _ := http.NewRequest(http.MethodPatch,
			baseURL+"/workflow/stages/"+researchID+"/config",
			bytes.NewReader([]byte(`{"depth":"brief"}`)))
		req.Header.Set("Content-Type", "application/json")
		patchResp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("PATCH config: %v", err)
		}
		decodeBody(t, patchResp, http.StatusOK, &stage)
		if stage.Config["depth"] != "brief" {
			t.Errorf("config depth = %v, want brief", stage.Config["depth"])
		}

		// Reset restores defaults.
		var wfAfter endpoints.WorkflowResponse
		resp = postJSON(t, baseURL+"/workflow/reset", nil)
		decodeBody(t, resp, http.StatusOK, &wfAfter)
		for _, s := range wfAfter.Stages {
			if s.Kind == workflow.KindResearch && !s.Enabled {
				t.Error("research not re-enabled by reset")
			}
		}
	})

	t.Run("run_without_input_fails", func(t *testing.T) {
		var rec runs.Record
		resp := postJSON(t, baseURL+"/workflow/run", []byte(`{}`))
		decodeBody(t, resp, http.StatusAccepted, &rec)

		deadline := time.Now().Add(10 * time.Second)
		for rec.State == runs.StateRunning && time.Now().Before(deadline) {
			time.Sleep(50 * time.Millisecond)
			getJSON(t, baseURL+"/workflow/runs/"+rec.ID, http.StatusOK, &rec)
		}
		if rec.State != runs.StateFailed {
			t.Fatalf("run state = %s, want failed", rec.State)
		}
		if rec.Result == nil || rec.Result.FailedStage != workflow.KindInput {
			t.Errorf("run result = %+v, want input validation failure", rec.Result)
		}
	})

	t.Run("run_rejects_malformed_body", func(t *testing.T) {
		resp := postJSON(t, baseURL+"/workflow/run", []byte(`{"topic":`))
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", resp.StatusCode)
		}
	})

	t.Run("unknown_run_404", func(t *testing.T) {
		resp, err := http.Get(baseURL + "/workflow/runs/not-a-run")
		if err != nil {
			t.Fatalf("GET run: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("status = %d, want 404", resp.StatusCode)
		}
	})
}

func newConfiguredServer(t *testing.T, configContent string) *Server {
	t.Helper()
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configFile, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	mgr, err := config.NewManager(configFile)
	if err != nil {
		t.Fatalf("config.NewManager: %v", err)
	}
	h, err := home.New(filepath.Join(tmpDir, "home"))
	if err != nil {
		t.Fatalf("home.New: %v", err)
	}
	srv, err := New(Config{ConfigManager: mgr, Home: h})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return srv
}

// The engine collaborators report the name of whatever provider the
// registry currently resolves, so log lines and stage output follow
// config changes.
func TestResolverNames(t *testing.T) {
	srv := newConfiguredServer(t, `
content_providers:
  openai:
    type: openai
    api_key: sk-test
    enabled: true
social_providers:
  linkedin:
    type: linkedin
    client_id: cid
    client_secret: secret
    redirect_url: http://127.0.0.1:8480/auth/callback
    enabled: true
defaults:
  content_provider: openai
  social_provider: linkedin
`)

	if got := (&contentResolver{srv}).Name(); got != "openai" {
		t.Errorf("content resolver name = %q, want openai", got)
	}
	if got := (&socialResolver{srv}).Name(); got != "linkedin" {
		t.Errorf("social resolver name = %q, want linkedin", got)
	}
}

// With no providers configured the resolvers fall back to generic labels
// and the auth flow still exists; it reports the missing provider per
// call instead of being disabled for the process lifetime.
func TestResolverNamesWithoutProviders(t *testing.T) {
	srv := newConfiguredServer(t, "engine:\n  stage_delay: 1ms\n")

	if got := (&contentResolver{srv}).Name(); got != "content" {
		t.Errorf("content resolver name = %q, want content", got)
	}
	if got := (&socialResolver{srv}).Name(); got != "social" {
		t.Errorf("social resolver name = %q, want social", got)
	}

	if srv.authFlow == nil {
		t.Fatal("auth flow not constructed without providers")
	}
	if _, err := srv.authFlow.Begin(); !errors.Is(err, auth.ErrNoProvider) {
		t.Errorf("Begin error = %v, want ErrNoProvider", err)
	}
}

func waitForServer(ctx context.Context, baseURL string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		resp, err := http.Get(baseURL + "/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("server at %s not ready after %s", baseURL, timeout)
}

func getJSON(t *testing.T, url string, wantStatus int, out any) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	decodeBody(t, resp, wantStatus, out)
}

func postJSON(t *testing.T, url string, body []byte) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, wantStatus int, out any) {
	t.Helper()
	defer resp.Body.Close()
	if resp.StatusCode != wantStatus {
		t.Fatalf("status = %d, want %d", resp.StatusCode, wantStatus)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
}
