package main

import (
	"github.com/spf13/cobra"

	"github.com/driftpost/driftpost/internal/server/endpoints"
)

var serverURL string

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Commands that call the running server",
	Long: `API commands call the running Driftpost server via HTTP.

These commands require a running server (driftpost serve).
Use --server to specify a custom server URL.

Examples:
  driftpost api health                  # Check server health
  driftpost api workflow get            # Show the stage graph
  driftpost api run start --topic=x     # Start a run`,
}

var workflowCmd = &cobra.Command{
	Use:   "workflow",
	Short: "Stage graph commands",
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run management commands",
}

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Social account connection commands",
}

// getServerURL returns the server URL at runtime (after flag parsing).
func getServerURL() string {
	return serverURL
}

func init() {
	// Add --server flag to api command (persistent so all subcommands inherit it)
	apiCmd.PersistentFlags().StringVar(
		&serverURL, "server", "http://localhost:8480", "Server URL",
	)

	// Health endpoints at top level of api
	apiCmd.AddCommand((&endpoints.HealthEndpoint{}).Command(getServerURL))
	apiCmd.AddCommand((&endpoints.StatusEndpoint{}).Command(getServerURL))

	// Workflow as subcommand group
	workflowCmd.AddCommand((&endpoints.GetWorkflowEndpoint{}).Command(getServerURL))
	workflowCmd.AddCommand((&endpoints.ToggleStageEndpoint{}).Command(getServerURL))
	workflowCmd.AddCommand((&endpoints.UpdateStageConfigEndpoint{}).Command(getServerURL))
	workflowCmd.AddCommand((&endpoints.ResetWorkflowEndpoint{}).Command(getServerURL))
	workflowCmd.AddCommand((&endpoints.PlanWorkflowEndpoint{}).Command(getServerURL))

	// Runs as subcommand group
	runCmd.AddCommand((&endpoints.StartRunEndpoint{}).Command(getServerURL))
	runCmd.AddCommand((&endpoints.GetRunEndpoint{}).Command(getServerURL))
	runCmd.AddCommand((&endpoints.RunEventsEndpoint{}).Command(getServerURL))
	runCmd.AddCommand((&endpoints.ListRunsEndpoint{}).Command(getServerURL))

	// Auth as subcommand group
	authCmd.AddCommand((&endpoints.LoginEndpoint{}).Command(getServerURL))
	authCmd.AddCommand((&endpoints.AuthStatusEndpoint{}).Command(getServerURL))
	authCmd.AddCommand((&endpoints.LogoutEndpoint{}).Command(getServerURL))

	apiCmd.AddCommand(workflowCmd)
	apiCmd.AddCommand(runCmd)
	apiCmd.AddCommand(authCmd)
	rootCmd.AddCommand(apiCmd)
}
