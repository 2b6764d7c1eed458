// Command pingwatch runs the uptime monitor.
//
// Usage:
//
//	pingwatch serve [--config pingwatch.yaml]   # probe targets and serve the API
//	pingwatch validate -t targets.yaml          # check a targets file
//	pingwatch probe -t targets.yaml [--id web]  # probe targets once and print results
//	pingwatch version
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// set via -ldflags "-X main.version=..."
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "pingwatch",
	Short: "Uptime monitor for HTTP, TCP, DNS and ping targets",
	Long: `pingwatch probes targets on their own intervals, keeps an append-only
log of observations, derives up/down state, and notifies on transitions.

Configuration comes from environment variables (API_ADDR, DATABASE_URL,
TARGETS_FILE, ...) optionally layered over a config file.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("pingwatch %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "path to config file (optional, env overrides it)")
	rootCmd.AddCommand(versionCmd)
}
