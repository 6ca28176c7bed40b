package main

import (
	"github.com/spf13/cobra"

	"github.com/driftpost/driftpost/internal/api"
	"github.com/driftpost/driftpost/version"
)

var (
	cfgFile      string
	homeDir      string
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "driftpost",
	Short: "Stage-based social content pipeline with generated text and images",
	Long: `Driftpost turns a topic into a published social post through an
ordered pipeline of stages.

The pipeline includes:
  - Topic research with source citations
  - Post composition with tone, language and length controls
  - Image generation with partial-failure tolerance
  - Preview and one-click publishing to a connected account`,
	Version: version.GitRelease,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.driftpost/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&homeDir, "home", "", "driftpost home directory (default: ~/.driftpost)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "yaml", "output format: yaml or json",
	)

	// Set output format before any command runs
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		api.SetOutputFormat(outputFormat)
	}

	rootCmd.AddCommand(versionCmd)
}
