package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newReconcileCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Expire ended subscriptions and sync state from Stripe once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := load()
			if err != nil {
				return err
			}

			expired, err := a.subscriptions.ExpireDue(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "expired %d subscriptions\n", expired)

			if a.gateway == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "stripe not configured, skipping reconcile")
				return nil
			}
			changed, err := a.subscriptions.Reconcile(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "reconciled %d subscriptions\n", changed)
			return nil
		},
	}
}
