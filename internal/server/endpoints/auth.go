package endpoints

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/driftpost/driftpost/internal/api"
	"github.com/driftpost/driftpost/internal/auth"
	"github.com/driftpost/driftpost/internal/home"
	"github.com/driftpost/driftpost/internal/providers"
	"github.com/driftpost/driftpost/internal/svcctx"
)

// LoginResponse is returned by POST /auth/login.
type LoginResponse struct {
	URL   string `json:"url"`
	State string `json:"state"`
}

// LoginEndpoint handles POST /auth/login: it starts an authorization flow
// and returns the URL the member must open. The exchange happens in the
// background once the platform redirects to /auth/callback.
type LoginEndpoint struct{}

func (e *LoginEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/auth/login", e.handler
}

func (e *LoginEndpoint) RequiresInit() bool { return true }

func (e *LoginEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	flow := svcctx.AuthFlowFrom(r.Context())
	if flow == nil {
		writeError(w, http.StatusServiceUnavailable, "no social provider configured")
		return
	}

	session, err := flow.Begin()
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrFlowInProgress):
			writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, auth.ErrNoProvider):
			writeError(w, http.StatusServiceUnavailable, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	// Wait in the background so the callback can complete the flow while
	// this response returns immediately.
	logger := svcctx.LoggerFrom(r.Context())
	go func() {
		if _, err := flow.Wait(context.WithoutCancel(r.Context()), session); err != nil {
			logger.Warn("authorization flow failed", "error", err)
		}
	}()

	writeJSON(w, http.StatusOK, LoginResponse{URL: session.URL, State: session.State})
}

func (e *LoginEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Start the social account authorization flow",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp LoginResponse
			if err := client.Post(cmd.Context(), "/auth/login", nil, &resp); err != nil {
				return err
			}
			fmt.Printf("Open this URL to authorize:\n\n  %s\n\n", resp.URL)
			fmt.Println("The server completes the connection when the redirect arrives.")
			return nil
		},
	}
}

// CallbackEndpoint handles GET /auth/callback, the OAuth redirect target.
type CallbackEndpoint struct{}

func (e *CallbackEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/auth/callback", e.handler
}

func (e *CallbackEndpoint) RequiresInit() bool { return true }

func (e *CallbackEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	flow := svcctx.AuthFlowFrom(r.Context())
	if flow == nil {
		writeError(w, http.StatusServiceUnavailable, "no social provider configured")
		return
	}

	q := r.URL.Query()
	if errCode := q.Get("error"); errCode != "" {
		writeError(w, http.StatusBadRequest, "authorization denied: "+errCode)
		return
	}
	state, code := q.Get("state"), q.Get("code")
	if state == "" || code == "" {
		writeError(w, http.StatusBadRequest, "missing state or code")
		return
	}

	if err := flow.Complete(state, code); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, "<html><body><p>Account connected. You can close this window.</p></body></html>")
}

func (e *CallbackEndpoint) Command(getServerURL func() string) *cobra.Command {
	// The callback is only ever hit by the platform redirect; there is no
	// meaningful CLI invocation, so the command is hidden.
	return &cobra.Command{
		Use:    "callback",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return errors.New("the callback endpoint is driven by the OAuth redirect")
		},
	}
}

// AuthStatusResponse is returned by GET /auth/status.
type AuthStatusResponse struct {
	Connected bool                `json:"connected"`
	Provider  string              `json:"provider,omitempty"`
	Identity  *providers.Identity `json:"identity,omitempty"`
}

// AuthStatusEndpoint handles GET /auth/status.
type AuthStatusEndpoint struct{}

func (e *AuthStatusEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/auth/status", e.handler
}

func (e *AuthStatusEndpoint) RequiresInit() bool { return true }

func (e *AuthStatusEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	flow := svcctx.AuthFlowFrom(r.Context())
	if flow == nil {
		writeJSON(w, http.StatusOK, AuthStatusResponse{Connected: false})
		return
	}

	outcome, err := flow.Status(r.Context())
	if err != nil {
		if errors.Is(err, home.ErrNoToken) || errors.Is(err, providers.ErrAuthExpired) || errors.Is(err, auth.ErrNoProvider) {
			writeJSON(w, http.StatusOK, AuthStatusResponse{Connected: false})
			return
		}
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, AuthStatusResponse{
		Connected: true,
		Provider:  outcome.Provider,
		Identity:  outcome.Identity,
	})
}

func (e *AuthStatusEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the connected social account",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp AuthStatusResponse
			if err := client.Get(cmd.Context(), "/auth/status", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// LogoutEndpoint handles DELETE /auth/token.
type LogoutEndpoint struct{}

func (e *LogoutEndpoint) Route() (string, string, http.HandlerFunc) {
	return "DELETE", "/auth/token", e.handler
}

func (e *LogoutEndpoint) RequiresInit() bool { return true }

func (e *LogoutEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	flow := svcctx.AuthFlowFrom(r.Context())
	if flow == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "disconnected"})
		return
	}
	if err := flow.Disconnect(); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "disconnected"})
}

func (e *LogoutEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Drop the saved social account connection",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			if err := client.Delete(cmd.Context(), "/auth/token"); err != nil {
				return err
			}
			fmt.Println("Disconnected.")
			return nil
		},
	}
}
