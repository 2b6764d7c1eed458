package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hamed0406/pingwatch/internal/config"
	"github.com/hamed0406/pingwatch/internal/domain"
	"github.com/hamed0406/pingwatch/internal/probe"
	"github.com/hamed0406/pingwatch/internal/registry"
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Probe the targets of a file once and print the results",
	Long: `Run a single probe for every target in a targets file (or only --id)
and print the outcome. Nothing is stored and no notifications are sent.`,
	RunE: runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)

	probeCmd.Flags().StringP("targets", "t", "", "path to targets file (required)")
	probeCmd.Flags().String("id", "", "probe only this target")
	_ = probeCmd.MarkFlagRequired("targets")
}

func runProbe(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	path, _ := cmd.Flags().GetString("targets")
	only, _ := cmd.Flags().GetString("id")

	ts, err := registry.Load(path)
	if err != nil {
		return err
	}
	if only != "" {
		var picked []*domain.Target
		for _, t := range ts {
			if string(t.ID) == only {
				picked = append(picked, t)
			}
		}
		if len(picked) == 0 {
			return fmt.Errorf("target %q: %w", only, domain.ErrNotFound)
		}
		ts = picked
	}

	runner := probe.NewRunner(zap.NewNop(), cfg.ProbeTimeout,
		probe.DefaultCheckers(cfg.ProbeTimeout, cfg.RetryAttempts, cfg.RetryBackoff))

	results := make([]*domain.Observation, len(ts))
	g, ctx := errgroup.WithContext(cmd.Context())
	g.SetLimit(8)
	for i, t := range ts {
		g.Go(func() error {
			obs, err := runner.Run(ctx, t)
			if err != nil {
				return fmt.Errorf("%s: %w", t.ID, err)
			}
			results[i] = obs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPROTOCOL\tSTATUS\tLATENCY\tDETAIL")
	down := 0
	for i, obs := range results {
		detail := obs.Error
		if obs.StatusCode != 0 && detail == "" {
			detail = fmt.Sprintf("HTTP %d", obs.StatusCode)
		}
		if !obs.Up() {
			down++
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%.1fms\t%s\n", ts[i].ID, ts[i].Protocol, obs.Status, obs.LatencyMS, detail)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if down > 0 {
		return fmt.Errorf("%d of %d targets down", down, len(ts))
	}
	return nil
}
