package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hamed0406/uptimewatch/internal/seed"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a monitor seed file",
	Long: `Parse a YAML seed file and validate every monitor without touching
the store. Useful in CI before deploying a new seed.

Exit codes:
  0 - file is valid
  1 - file is invalid (details on stderr)`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().StringP("file", "f", "", "path to seed file (required)")
	_ = validateCmd.MarkFlagRequired("file")
}

func runValidate(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("file")
	monitors, err := seed.Load(path)
	if err != nil {
		return fmt.Errorf("invalid seed: %w", err)
	}

	withHook := 0
	for _, m := range monitors {
		if m.Webhook != nil {
			withHook++
		}
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Seed is valid!\n")
	fmt.Fprintf(out, "  Monitors:      %d\n", len(monitors))
	fmt.Fprintf(out, "  With webhooks: %d\n", withHook)
	return nil
}
