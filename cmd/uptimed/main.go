// Command uptimed checks registered HTTP monitors on a fixed cadence and
// reacts to UP/DOWN transitions.
//
// Usage:
//
//	uptimed serve              # API, push feed and background scheduler
//	uptimed check [--force]    # run one check cycle and print the report
//	uptimed validate -f seed.yaml
//	uptimed preflight          # sanity-check the environment
//	uptimed version
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// set at build time via -ldflags "-X main.version=..."
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "uptimed",
	Short: "HTTP uptime monitor",
	Long: `uptimed probes registered HTTP endpoints, records UP/DOWN transitions,
notifies monitor owners, calls their webhooks and pushes every change to
live subscribers over WebSocket and Server-Sent Events.

Configuration is read from the environment (and .env when present).`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("uptimed %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
