package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/hamed0406/pingwatch/internal/domain"
	"github.com/hamed0406/pingwatch/internal/registry"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a targets file",
	Long: `Parse a targets file, expand environment variables, and validate every
definition without starting anything. Useful as a CI check.

Exit codes:
  0 - file is valid
  1 - file is invalid (every problem is printed)`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringP("targets", "t", "", "path to targets file (required)")
	_ = validateCmd.MarkFlagRequired("targets")
}

func runValidate(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("targets")
	ts, err := registry.Load(path)
	if err != nil {
		for _, e := range multierr.Errors(err) {
			fmt.Fprintln(cmd.ErrOrStderr(), "✖", e)
		}
		return fmt.Errorf("invalid targets file %s", path)
	}

	byProtocol := map[domain.Protocol]int{}
	for _, t := range ts {
		byProtocol[t.Protocol]++
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Targets file is valid!\n")
	fmt.Fprintf(out, "  Targets: %d\n", len(ts))
	for _, p := range []domain.Protocol{domain.ProtocolHTTP, domain.ProtocolTCP, domain.ProtocolDNS, domain.ProtocolPing} {
		if n := byProtocol[p]; n > 0 {
			fmt.Fprintf(out, "  %-8s %d\n", p+":", n)
		}
	}
	return nil
}
