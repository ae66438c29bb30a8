package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var orgsFoundation string

var orgsCmd = &cobra.Command{
	Use:   "orgs",
	Short: "List organizations per foundation",
	Long: `List the organizations of each configured foundation, after excluded
orgs and the system org are removed.

Examples:
  cfusage orgs
  cfusage orgs --foundation east`,
	RunE: runOrgs,
}

func init() {
	rootCmd.AddCommand(orgsCmd)

	orgsCmd.Flags().StringVar(&orgsFoundation, "foundation", "", "only list this foundation")
}

func runOrgs(cmd *cobra.Command, args []string) error {
	svc, _, err := loadServices(cmd)
	if err != nil {
		return err
	}

	foundations := svc.Directory.Foundations()
	if orgsFoundation != "" {
		foundations = []string{orgsFoundation}
	}

	ctx := context.Background()
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "FOUNDATION\tGUID\tNAME")
	fmt.Fprintln(w, "----------\t----\t----")

	var failed int
	for _, f := range foundations {
		if err := svc.Directory.Refresh(ctx, f); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", f, err)
			failed++
			continue
		}
		for _, o := range svc.Directory.List(f) {
			fmt.Fprintf(w, "%s\t%s\t%s\n", f, o.GUID, o.Name)
		}
	}
	w.Flush()

	if failed > 0 {
		return fmt.Errorf("%d of %d foundations could not be listed", failed, len(foundations))
	}
	return nil
}
