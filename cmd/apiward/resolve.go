package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/artpar/apiward/bootstrap"
	"github.com/artpar/apiward/config"
	"github.com/artpar/apiward/domain/cachepolicy"
)

var resolveOffline bool

var resolveCmd = &cobra.Command{
	Use:   "resolve <url> [url...]",
	Short: "Show how URLs would be classified and cached",
	Long: `Resolve one or more URLs against the cache policy table and print
the tier and Cache-Control directive each would receive.

The policy table comes from the config file when present; otherwise
the built-in keyword tables apply.

Examples:
  apiward resolve https://api.example.com/nice/servant/4
  apiward resolve --offline /nice/event/list
  apiward resolve /nice/servant/4 /nice/shop/1 /unknown/path`,
	Args: cobra.MinimumNArgs(1),
	RunE: runResolve,
}

func init() {
	rootCmd.AddCommand(resolveCmd)

	resolveCmd.Flags().BoolVar(&resolveOffline, "offline", false, "show the offline directive instead of the online one")
}

func runResolve(cmd *cobra.Command, args []string) error {
	table := cachepolicy.DefaultTable()
	if _, err := os.Stat(cfgFile); err == nil {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		table = bootstrap.BuildTable(cfg.CachePolicy)
	}

	for _, rawURL := range args {
		class := cachepolicy.Classify(table, rawURL)
		policy := table.PolicyFor(class)
		directive := cachepolicy.Directive(policy, !resolveOffline)

		fmt.Printf("%s\n", rawURL)
		fmt.Printf("  tier:          %s\n", class)
		fmt.Printf("  max-age:       %s\n", policy.MaxAge)
		fmt.Printf("  cache-control: %s\n", directive)
	}

	return nil
}
