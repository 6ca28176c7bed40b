// Package svcctx provides service context for dependency injection via context.
// This package is separate from server to avoid import cycles with endpoints.
package svcctx

import (
	"context"
	"log/slog"

	"github.com/driftpost/driftpost/internal/auth"
	"github.com/driftpost/driftpost/internal/config"
	"github.com/driftpost/driftpost/internal/home"
	"github.com/driftpost/driftpost/internal/providers"
	"github.com/driftpost/driftpost/internal/runs"
	"github.com/driftpost/driftpost/internal/workflow"
)

// Services holds all core services that flow through context.
// Components extract what they need via the individual extractors.
type Services struct {
	ConfigManager *config.Manager
	Registry      *providers.Registry
	Workflow      *workflow.Registry
	Engine        *workflow.Engine
	Runs          *runs.Manager
	AuthFlow      *auth.Flow
	Home          *home.Dir
	Logger        *slog.Logger
}

type servicesKey struct{}

// WithServices returns a new context with services attached.
func WithServices(ctx context.Context, s *Services) context.Context {
	return context.WithValue(ctx, servicesKey{}, s)
}

// ServicesFrom extracts the full Services struct from context.
// Returns nil if not present.
func ServicesFrom(ctx context.Context) *Services {
	s, _ := ctx.Value(servicesKey{}).(*Services)
	return s
}

// ConfigManagerFrom extracts the config manager from context.
func ConfigManagerFrom(ctx context.Context) *config.Manager {
	if s := ServicesFrom(ctx); s != nil {
		return s.ConfigManager
	}
	return nil
}

// RegistryFrom extracts the provider registry from context.
func RegistryFrom(ctx context.Context) *providers.Registry {
	if s := ServicesFrom(ctx); s != nil {
		return s.Registry
	}
	return nil
}

// WorkflowFrom extracts the stage registry from context.
func WorkflowFrom(ctx context.Context) *workflow.Registry {
	if s := ServicesFrom(ctx); s != nil {
		return s.Workflow
	}
	return nil
}

// EngineFrom extracts the workflow engine from context.
func EngineFrom(ctx context.Context) *workflow.Engine {
	if s := ServicesFrom(ctx); s != nil {
		return s.Engine
	}
	return nil
}

// RunsFrom extracts the run manager from context.
func RunsFrom(ctx context.Context) *runs.Manager {
	if s := ServicesFrom(ctx); s != nil {
		return s.Runs
	}
	return nil
}

// AuthFlowFrom extracts the authorization flow from context.
func AuthFlowFrom(ctx context.Context) *auth.Flow {
	if s := ServicesFrom(ctx); s != nil {
		return s.AuthFlow
	}
	return nil
}

// HomeFrom extracts the home directory from context.
func HomeFrom(ctx context.Context) *home.Dir {
	if s := ServicesFrom(ctx); s != nil {
		return s.Home
	}
	return nil
}

// LoggerFrom extracts the logger from context.
// Returns slog.Default() if not present.
func LoggerFrom(ctx context.Context) *slog.Logger {
	if s := ServicesFrom(ctx); s != nil && s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
