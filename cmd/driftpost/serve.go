package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/driftpost/driftpost/internal/config"
	"github.com/driftpost/driftpost/internal/home"
	"github.com/driftpost/driftpost/internal/server"
)

var (
	serveHost string
	servePort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Driftpost server",
	Long: `Start the Driftpost HTTP server.

The server exposes the stage graph, runs the pipeline and handles the
social account authorization callback.

Examples:
  driftpost serve                    # Start on default port 8480
  driftpost serve --port 3000        # Start on custom port
  driftpost serve --host 0.0.0.0     # Bind to all interfaces`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		// Set up logger
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))

		// Get home directory
		h, err := home.New(homeDir)
		if err != nil {
			return err
		}
		if err := h.EnsureExists(); err != nil {
			return err
		}

		// Load configuration (flag, then home config, then defaults)
		cfgPath := cfgFile
		if cfgPath == "" && h.ConfigExists() {
			cfgPath = h.ConfigPath()
		}
		mgr, err := config.NewManager(cfgPath)
		if err != nil {
			return err
		}

		appCfg := mgr.Get()
		host := serveHost
		if !cmd.Flags().Changed("host") && appCfg.Server.Host != "" {
			host = appCfg.Server.Host
		}
		port := servePort
		if !cmd.Flags().Changed("port") && appCfg.Server.Port != 0 {
			port = appCfg.Server.Port
		}

		srv, err := server.New(server.Config{
			Host:          host,
			Port:          port,
			ConfigManager: mgr,
			Home:          h,
			Logger:        logger,
		})
		if err != nil {
			return err
		}

		// Start server (blocks until shutdown)
		return srv.Start(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "127.0.0.1", "Host to bind to")
	serveCmd.Flags().IntVar(&servePort, "port", 8480, "Port to listen on")

	rootCmd.AddCommand(serveCmd)
}
