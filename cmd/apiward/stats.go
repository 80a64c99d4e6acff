package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	apihttp "github.com/artpar/apiward/adapters/http"
)

var (
	statsAddr  string
	statsReset bool
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show rate limiter statistics of a running proxy",
	Long: `Query the /apiward/stats endpoint of a running apiward proxy and
print its rate limiter statistics.

Examples:
  apiward stats
  apiward stats --addr http://127.0.0.1:9090
  apiward stats --reset`,
	RunE: runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)

	statsCmd.Flags().StringVar(&statsAddr, "addr", "http://127.0.0.1:8780", "address of the running proxy")
	statsCmd.Flags().BoolVar(&statsReset, "reset", false, "reset the counters after printing")
}

func runStats(cmd *cobra.Command, args []string) error {
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(statsAddr + "/apiward/stats")
	if err != nil {
		return fmt.Errorf("query proxy: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("proxy returned %s", resp.Status)
	}

	var stats apihttp.StatsResponse
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return fmt.Errorf("decode stats: %w", err)
	}

	fmt.Println(stats.Summary)
	if stats.Throttling {
		fmt.Println("Status: throttling (no tokens available)")
	}

	if statsReset {
		resetResp, err := client.Post(statsAddr+"/apiward/stats/reset", "", nil)
		if err != nil {
			return fmt.Errorf("reset stats: %w", err)
		}
		resetResp.Body.Close()
		fmt.Println("Counters reset.")
	}

	return nil
}
