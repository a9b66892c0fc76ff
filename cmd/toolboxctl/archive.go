package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/qs3c/toolbox_server/internal/pkg/oss"
	"github.com/qs3c/toolbox_server/internal/service"
)

func newArchiveLogsCmd(load loader) *cobra.Command {
	var (
		olderThan time.Duration
		batchSize int
		dryRun    bool
	)

	cmd := &cobra.Command{
		Use:   "archive-logs",
		Short: "Upload old system logs to OSS and delete them from the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if olderThan <= 0 {
				return fmt.Errorf("--older-than must be positive")
			}

			a, err := load()
			if err != nil {
				return err
			}

			var store service.ArchiveStore
			if !dryRun {
				client, err := oss.NewClient(&a.cfg.OSS)
				if err != nil {
					return err
				}
				store = client
			}

			before := time.Now().UTC().Add(-olderThan)
			result, err := a.logs.Archive(cmd.Context(), store, before, batchSize, dryRun)
			if result != nil {
				out := cmd.OutOrStdout()
				for _, key := range result.Objects {
					fmt.Fprintf(out, "uploaded %s\n", key)
				}
				if dryRun {
					fmt.Fprintf(out, "%d logs before %s would be archived\n", result.Archived, before.Format(time.RFC3339))
				} else {
					fmt.Fprintf(out, "archived %d logs\n", result.Archived)
				}
			}
			return err
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "archive logs older than this")
	cmd.Flags().IntVar(&batchSize, "batch", 1000, "logs per archive object")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "only count matching logs")
	return cmd
}
