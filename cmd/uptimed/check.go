package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run one check cycle and print the report",
	Long: `Run a single check cycle against the configured store and exit.

Intended for external time-based triggers (cron, Kubernetes CronJob).
Running it more often than the monitors' intervals is safe: with --force
every active monitor is checked, otherwise only the ones that are due.`,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().Bool("force", false, "check every active monitor regardless of its interval")
}

func runCheck(cmd *cobra.Command, args []string) error {
	force, _ := cmd.Flags().GetBool("force")

	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	report, err := a.sched.RunOnce(cmd.Context(), force)
	if err != nil {
		return fmt.Errorf("check cycle: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
