package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tola-labs/cfusage/adapters/clock"
	"github.com/tola-labs/cfusage/bootstrap"
	"github.com/tola-labs/cfusage/config"
)

var (
	// Global flags
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "cfusage",
	Short: "Quarterly app and service usage rollups for Cloud Foundry",
	Long: `cfusage queries the app usage service of one or more Cloud Foundry
foundations and rolls usage up per organization, space, app and service
instance for each calendar quarter.

Quick start:
  cfusage serve      # Start the HTTP API
  cfusage orgs       # List organizations per foundation
  cfusage usage app --foundation east --org <guid> --period 2024-Q1

Operations:
  cfusage refresh    # Recompute every rollup once
  cfusage validate   # Validate configuration`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "cfusage.yaml", "config file path")
}

// loadServices loads the configuration and wires the usage services without
// an HTTP server. Logs go to stderr so command output stays clean.
func loadServices(cmd *cobra.Command) (*bootstrap.Services, *config.Config, error) {
	cfg, err := config.LoadWithFallback(cfgFile)
	if err != nil {
		return nil, nil, err
	}

	logger := bootstrap.SetupLogger(cfg.Logging, cmd.ErrOrStderr())
	svc := bootstrap.NewServices(cfg, logger, nil, clock.NewInLocation(clock.Real{}, time.UTC))
	return svc, cfg, nil
}
