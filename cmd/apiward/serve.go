package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/artpar/apiward/bootstrap"
	"github.com/artpar/apiward/config"
)

var (
	hotReload bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local governing proxy",
	Long: `Start the apiward proxy server.

The server will:
  - Load configuration from apiward.yaml (or --config)
  - Or load configuration from APIWARD_* environment variables
  - Forward requests to the remote API through the rate limiter
  - Rewrite Cache-Control headers per endpoint classification
  - Serve cached responses for reads while offline

Environment variables (for Docker deployments):
  APIWARD_UPSTREAM_URL     - Remote API URL (required)
  APIWARD_SERVER_PORT      - Proxy port (default: 8780)
  APIWARD_RATELIMIT_MAX    - Tokens per window (default: 60)
  APIWARD_RATELIMIT_WINDOW - Window seconds (default: 60)
  APIWARD_CACHE_DRIVER     - Offline cache: memory or sqlite
  APIWARD_LOG_LEVEL        - Log level: debug, info, warn, error

Examples:
  apiward serve
  apiward serve --config /etc/apiward/config.yaml
  apiward serve --hot-reload=false

  # Docker (env vars only):
  APIWARD_UPSTREAM_URL=https://api.atlasacademy.io apiward serve`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&hotReload, "hot-reload", true, "enable hot reload of configuration")
}

func runServe(cmd *cobra.Command, args []string) error {
	hasConfigFile := false
	if _, err := os.Stat(cfgFile); err == nil {
		hasConfigFile = true
	}

	hasEnvConfig := config.HasEnvConfig()

	// No configuration at all
	if !hasConfigFile && !hasEnvConfig {
		fmt.Println("No configuration found.")
		fmt.Println()
		fmt.Printf("Option 1: Create %s with at least upstream.url set\n", cfgFile)
		fmt.Println("Option 2: Set APIWARD_UPSTREAM_URL environment variable")
		fmt.Println()
		fmt.Println("Example (env vars):")
		fmt.Println("  APIWARD_UPSTREAM_URL=https://api.example.com apiward serve")
		return nil
	}

	// Create application
	var app *bootstrap.App
	var err error

	if hasConfigFile && hotReload {
		// Hot reload only works with config file
		app, err = bootstrap.NewWithHotReload(cfgFile)
	} else {
		// Load config (file with env overrides, or env-only)
		cfg, loadErr := config.LoadWithFallback(cfgFile)
		if loadErr != nil {
			return fmt.Errorf("error loading config: %w", loadErr)
		}

		if !hasConfigFile {
			fmt.Println("Running with environment variables (no config file)")
		}

		app, err = bootstrap.New(cfg)
	}

	if err != nil {
		return fmt.Errorf("error initializing: %w", err)
	}

	// Run (blocks until shutdown)
	return app.Run()
}
