package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "apiward",
	Short: "Client-side request governor with rate limiting and cache policy",
	Long: `Apiward sits between your clients and a remote API and keeps you a
polite consumer of it: requests pass through a token bucket rate
limiter, responses get Cache-Control directives matched to how fast
each endpoint's data actually changes, and when the network drops,
cached responses keep read traffic alive.

Quick start:
  apiward serve     # Start the local governing proxy
  apiward resolve   # Show how a URL would be classified

Management:
  apiward stats     # Show rate limiter statistics of a running proxy
  apiward validate  # Validate configuration`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "apiward.yaml", "config file path")
}
