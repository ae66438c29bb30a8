package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tola-labs/cfusage/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration before deployment",
	Long: `Validate the cfusage configuration.

Checks:
  - YAML syntax is valid
  - Required fields are present
  - Every foundation can list its organizations (optional)

Examples:
  cfusage validate
  cfusage validate --config /etc/cfusage/config.yaml --check-upstream`,
	RunE: runValidate,
}

var validateCheckUpstream bool

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().BoolVar(&validateCheckUpstream, "check-upstream", false, "check that every foundation answers")
}

func runValidate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Validating %s...\n\n", cfgFile)

	if _, err := os.Stat(cfgFile); err != nil && !config.HasEnvConfig() {
		fmt.Fprintf(out, "  %s Config file exists\n", crossMark)
		return fmt.Errorf("config file not found: %s", cfgFile)
	}

	cfg, err := config.LoadWithFallback(cfgFile)
	if err != nil {
		fmt.Fprintf(out, "  %s Config valid\n", crossMark)
		return fmt.Errorf("config error: %w", err)
	}
	fmt.Fprintf(out, "  %s Config valid\n", checkMark)

	fmt.Fprintf(out, "  %s Listen address: %s\n", checkMark, cfg.Server.Addr())
	for _, f := range cfg.Foundations {
		auth := "none"
		switch {
		case f.UAA.Enabled():
			auth = "uaa client " + f.UAA.ClientID
		case f.Token != "":
			auth = "static token"
		}
		mark := checkMark
		if auth == "none" || f.UsageURL == "" || f.APIURL == "" {
			mark = crossMark
		}
		fmt.Fprintf(out, "  %s Foundation %s: usage=%s api=%s auth=%s\n", mark, f.Name, f.UsageURL, f.APIURL, auth)
	}
	fmt.Fprintf(out, "  %s Excluded orgs: %d, included services: %d\n", checkMark, len(cfg.ExcludedOrgs), len(cfg.IncludedServices))
	if len(cfg.IncludedServices) == 0 {
		fmt.Fprintf(out, "      Warning: no included services, service rollups will be empty\n")
	}

	if validateCheckUpstream {
		svc, _, err := loadServices(cmd)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		var failed int
		for _, name := range svc.Directory.Foundations() {
			if err := svc.Directory.Refresh(ctx, name); err != nil {
				fmt.Fprintf(out, "  %s Foundation %s reachable\n", crossMark, name)
				fmt.Fprintf(out, "      Error: %v\n", err)
				failed++
				continue
			}
			fmt.Fprintf(out, "  %s Foundation %s reachable (%d orgs)\n", checkMark, name, len(svc.Directory.List(name)))
		}
		if failed > 0 {
			return fmt.Errorf("%d foundations unreachable", failed)
		}
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "Configuration is valid.")
	return nil
}

const (
	checkMark = "\033[32m✓\033[0m"
	crossMark = "\033[31m✗\033[0m"
)
