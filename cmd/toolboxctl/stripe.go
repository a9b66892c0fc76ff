package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newStripeSyncCmd(load loader) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "stripe-sync",
		Short: "Create Stripe products and prices for paid plans that lack them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := load()
			if err != nil {
				return err
			}
			if a.gateway == nil {
				return errors.New("stripe.secret_key is not configured")
			}

			results, err := a.plans.SyncStripe(cmd.Context(), a.gateway, dryRun)
			out := cmd.OutOrStdout()
			for _, r := range results {
				if len(r.Created) == 0 {
					fmt.Fprintf(out, "%-12s up to date (product=%s)\n", r.Plan, r.ProductID)
					continue
				}
				verb := "created"
				if dryRun {
					verb = "would create"
				}
				fmt.Fprintf(out, "%-12s %s %s\n", r.Plan, verb, strings.Join(r.Created, ", "))
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "only print what would be created")
	return cmd
}
