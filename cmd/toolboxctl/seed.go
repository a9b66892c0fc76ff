package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSeedCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Create default plans, tools and the admin user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := load()
			if err != nil {
				return err
			}

			created, err := a.seed.Seed()
			for _, item := range created {
				fmt.Fprintf(cmd.OutOrStdout(), "created %s\n", item)
			}
			if err != nil {
				return err
			}
			if len(created) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "nothing to seed")
			}
			return nil
		},
	}
}
