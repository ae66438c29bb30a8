package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tola-labs/cfusage/bootstrap"
	"github.com/tola-labs/cfusage/config"
)

var (
	hotReload bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the usage API server",
	Long: `Start the cfusage HTTP API.

The server will:
  - Load configuration from cfusage.yaml (or --config)
  - Or load configuration from CFUSAGE_* environment variables
  - List the organizations of every foundation
  - Answer rollup queries, computing and caching them on first use
  - Recompute every rollup on the refresh schedule

Environment variables (for container deployments):
  CFUSAGE_FOUNDATIONS        - name=usage_url|api_url|token;... (required)
  CFUSAGE_EXCLUDED_ORGS      - Comma-separated org names to skip
  CFUSAGE_INCLUDED_SERVICES  - Comma-separated service names to count
  CFUSAGE_SERVER_PORT        - Server port (default: 8080)
  CFUSAGE_LOG_LEVEL          - Log level: debug, info, warn, error

Examples:
  cfusage serve
  cfusage serve --config /etc/cfusage/config.yaml
  cfusage serve --hot-reload=false`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&hotReload, "hot-reload", true, "enable hot reload of configuration")
}

func runServe(cmd *cobra.Command, args []string) error {
	hasConfigFile := false
	if _, err := os.Stat(cfgFile); err == nil {
		hasConfigFile = true
	}

	if !hasConfigFile && !config.HasEnvConfig() {
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "No configuration found.")
		fmt.Fprintln(out)
		fmt.Fprintf(out, "Option 1: Create %s with a foundations list\n", cfgFile)
		fmt.Fprintln(out, "Option 2: Set CFUSAGE_FOUNDATIONS")
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Example (env vars):")
		fmt.Fprintln(out, `  CFUSAGE_FOUNDATIONS="east=https://app-usage.sys.east.example.com|https://api.sys.east.example.com|bearer TOKEN" cfusage serve`)
		return nil
	}

	opts := bootstrap.Options{Version: version}

	var (
		app *bootstrap.App
		err error
	)
	if hasConfigFile && hotReload {
		// Hot reload only works with a config file
		app, err = bootstrap.NewWithHotReload(cfgFile, opts)
	} else {
		cfg, loadErr := config.LoadWithFallback(cfgFile)
		if loadErr != nil {
			return fmt.Errorf("error loading config: %w", loadErr)
		}
		app, err = bootstrap.New(cfg, opts)
	}
	if err != nil {
		return fmt.Errorf("error initializing: %w", err)
	}

	// Run (blocks until shutdown)
	return app.Run(context.Background())
}
