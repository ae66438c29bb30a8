package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tola-labs/cfusage/domain/quarter"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Recompute every rollup once",
	Long: `Recompute the app and service rollups of every organization of every
foundation, the same run the server performs on its schedule. Failures are
reported per unit; the command exits non-zero when any unit failed.

Examples:
  cfusage refresh
  cfusage refresh --foundation east --period 2024-Q1 --period 2024-Q2`,
	RunE: runRefresh,
}

var (
	refreshFoundations []string
	refreshPeriods     []string
)

func init() {
	rootCmd.AddCommand(refreshCmd)

	refreshCmd.Flags().StringSliceVar(&refreshFoundations, "foundation", nil, "foundations to refresh (default: all)")
	refreshCmd.Flags().StringSliceVar(&refreshPeriods, "period", nil, "quarters as YYYY-Qn (default: elapsed quarters of this year)")
}

func runRefresh(cmd *cobra.Command, args []string) error {
	periods := quarter.Elapsed(time.Now().UTC())
	if len(refreshPeriods) > 0 {
		periods = periods[:0]
		for _, raw := range refreshPeriods {
			p, err := quarter.ParsePeriod(raw)
			if err != nil {
				return err
			}
			periods = append(periods, p)
		}
	}

	svc, cfg, err := loadServices(cmd)
	if err != nil {
		return err
	}

	foundations := svc.Directory.Foundations()
	if len(refreshFoundations) > 0 {
		foundations = refreshFoundations
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Refresh.Timeout)
	defer cancel()

	report, err := svc.Refresher.RefreshPeriods(ctx, foundations, periods)
	if report == nil {
		return err
	}

	names := make([]string, len(report.Periods))
	for i, p := range report.Periods {
		names[i] = p.String()
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Refresh %s\n", report.RunID)
	fmt.Fprintf(out, "Foundations: %s\n", strings.Join(foundations, ", "))
	fmt.Fprintf(out, "Periods:     %s\n", strings.Join(names, ", "))
	fmt.Fprintf(out, "Refreshed:   %d\n", report.Refreshed)
	fmt.Fprintf(out, "Failed:      %d\n", report.Failed)
	fmt.Fprintf(out, "Took:        %s\n", report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond))
	for _, e := range report.Errors {
		fmt.Fprintf(out, "  - %s\n", e)
	}

	if report.Failed > 0 {
		return fmt.Errorf("refresh %s: %d units failed", report.Outcome(), report.Failed)
	}
	return nil
}
