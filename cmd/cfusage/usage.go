package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tola-labs/cfusage/domain/quarter"
	"github.com/tola-labs/cfusage/domain/usage"
)

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Compute usage rollups",
	Long: `Compute the app or service instance rollup of one organization, either
for a calendar quarter or for an arbitrary date range.

Examples:
  cfusage usage app --foundation east --org 0d6b... --period 2024-Q1
  cfusage usage service --foundation east --org 0d6b... --period 2024-Q2 --output json
  cfusage usage app --foundation east --org 0d6b... --start 2024-02-01 --end 2024-02-15`,
}

var usageAppCmd = &cobra.Command{
	Use:   "app",
	Short: "Show the app rollup of an organization",
	RunE:  runUsageApp,
}

var usageServiceCmd = &cobra.Command{
	Use:   "service",
	Short: "Show the service instance rollup of an organization",
	RunE:  runUsageService,
}

var (
	usageFoundation string
	usageOrg        string
	usagePeriod     string
	usageStart      string
	usageEnd        string
	usageOutput     string
)

func init() {
	rootCmd.AddCommand(usageCmd)

	usageCmd.AddCommand(usageAppCmd)
	usageCmd.AddCommand(usageServiceCmd)

	usageCmd.PersistentFlags().StringVar(&usageFoundation, "foundation", "", "foundation name (required)")
	usageCmd.PersistentFlags().StringVar(&usageOrg, "org", "", "organization GUID (required)")
	usageCmd.PersistentFlags().StringVar(&usagePeriod, "period", "", "quarter as YYYY-Qn (default: current quarter)")
	usageCmd.PersistentFlags().StringVar(&usageStart, "start", "", "range start as YYYY-MM-DD")
	usageCmd.PersistentFlags().StringVar(&usageEnd, "end", "", "range end as YYYY-MM-DD")
	usageCmd.PersistentFlags().StringVarP(&usageOutput, "output", "o", "table", "output format: table or json")
}

// usageQuery is the resolved target of a usage command.
type usageQuery struct {
	period     quarter.Period
	start, end time.Time
	isRange    bool
}

func resolveUsageQuery(now time.Time) (usageQuery, error) {
	if usageFoundation == "" || usageOrg == "" {
		return usageQuery{}, fmt.Errorf("--foundation and --org are required")
	}
	if usageOutput != "table" && usageOutput != "json" {
		return usageQuery{}, fmt.Errorf("--output must be table or json")
	}

	if usageStart != "" || usageEnd != "" {
		if usagePeriod != "" {
			return usageQuery{}, fmt.Errorf("use either --period or --start/--end")
		}
		if usageStart == "" || usageEnd == "" {
			return usageQuery{}, fmt.Errorf("--start and --end must be given together")
		}
		start, err := quarter.Parse(usageStart)
		if err != nil {
			return usageQuery{}, err
		}
		end, err := quarter.Parse(usageEnd)
		if err != nil {
			return usageQuery{}, err
		}
		return usageQuery{start: start, end: end, isRange: true}, nil
	}

	if usagePeriod == "" {
		return usageQuery{period: quarter.PeriodOf(now)}, nil
	}
	p, err := quarter.ParsePeriod(usagePeriod)
	if err != nil {
		return usageQuery{}, err
	}
	return usageQuery{period: p}, nil
}

func runUsageApp(cmd *cobra.Command, args []string) error {
	q, err := resolveUsageQuery(time.Now().UTC())
	if err != nil {
		return err
	}
	svc, _, err := loadServices(cmd)
	if err != nil {
		return err
	}

	ctx := context.Background()
	var rollup *usage.OrgUsage
	if q.isRange {
		rollup, err = svc.Usage.AppUsageRange(ctx, usageFoundation, usageOrg, q.start, q.end)
	} else {
		rollup, err = svc.Usage.AppUsage(ctx, usageFoundation, usageOrg, q.period.Year, q.period.Quarter)
	}
	if err != nil {
		return fmt.Errorf("app usage: %w", err)
	}

	if usageOutput == "json" {
		return writeJSON(cmd.OutOrStdout(), rollup)
	}
	printAppRollup(cmd.OutOrStdout(), rollup)
	return nil
}

func runUsageService(cmd *cobra.Command, args []string) error {
	q, err := resolveUsageQuery(time.Now().UTC())
	if err != nil {
		return err
	}
	svc, _, err := loadServices(cmd)
	if err != nil {
		return err
	}

	ctx := context.Background()
	var rollup *usage.SIUsage
	if q.isRange {
		rollup, err = svc.Usage.ServiceUsageRange(ctx, usageFoundation, usageOrg, q.start, q.end)
	} else {
		rollup, err = svc.Usage.ServiceUsage(ctx, usageFoundation, usageOrg, q.period.Year, q.period.Quarter)
	}
	if err != nil {
		return fmt.Errorf("service usage: %w", err)
	}

	if usageOutput == "json" {
		return writeJSON(cmd.OutOrStdout(), rollup)
	}
	printServiceRollup(cmd.OutOrStdout(), rollup)
	return nil
}

func printAppRollup(out io.Writer, r *usage.OrgUsage) {
	fmt.Fprintf(out, "App usage for %s\n", r.OrgGUID)
	fmt.Fprintf(out, "Period: %s to %s (%d days)\n\n", quarter.Format(r.PeriodStart), quarter.Format(r.PeriodEnd), r.DaysElapsed)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SPACE\tAPPS\tINSTANCES\tMB-SECONDS\tSECONDS")
	fmt.Fprintln(w, "-----\t----\t---------\t----------\t-------")
	for _, guid := range slices.Sorted(maps.Keys(r.SpaceUsage)) {
		s := r.SpaceUsage[guid]
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\n", s.SpaceName, s.TotalApps, s.TotalAis, s.TotalMbPerAis, s.AiDurationInSecs)
	}
	fmt.Fprintf(w, "TOTAL\t%d\t%d\t%d\t%d\n", r.TotalApps(), r.TotalAis(), r.TotalMbPerAis(), r.AiDurationInSecs())
	w.Flush()
}

func printServiceRollup(out io.Writer, r *usage.SIUsage) {
	fmt.Fprintf(out, "Service usage for %s\n", r.OrgGUID)
	fmt.Fprintf(out, "Period: %s to %s (%d days)\n\n", quarter.Format(r.PeriodStart), quarter.Format(r.PeriodEnd), r.DaysElapsed)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SPACE\tSERVICES\tINSTANCES\tINSTANCE-PERIODS")
	fmt.Fprintln(w, "-----\t--------\t---------\t----------------")
	for _, guid := range slices.Sorted(maps.Keys(r.SpaceUsage)) {
		s := r.SpaceUsage[guid]
		fmt.Fprintf(w, "%s\t%d\t%d\t%.4f\n", s.SpaceName, s.TotalSvcs, s.TotalSis, s.SiDurationInSecs)
	}
	fmt.Fprintf(w, "TOTAL\t%d\t%d\t%.4f\n", r.TotalSvcs(), r.TotalSis(), r.SiDurationInSecs())
	w.Flush()
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
