package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/guard"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/service"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/store"
)

// NewLogsCommand creates the logs command group.
func NewLogsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Read and prune the access log",
	}
	cmd.AddCommand(newLogsTailCommand(rootOpts))
	cmd.AddCommand(newLogsPruneCommand(rootOpts))
	return cmd
}

func newLogsTailCommand(rootOpts *RootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Print the most recent access log entries, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit <= 0 {
				return fmt.Errorf("--limit must be positive")
			}
			return withAdmin(cmd, rootOpts, func(ctx context.Context, a *admin) error {
				var entries []store.LogEntry
				err := a.guard.Do(ctx, a.bulk, func(h *guard.Handle) error {
					var err error
					entries, err = h.RecentLogs(limit)
					return err
				})
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for _, e := range entries {
					fmt.Fprintf(out, "%s\t%s\t%s\t%s\n", e.At.UTC().Format(time.RFC3339), e.Kind, e.UID, e.Info)
				}
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of entries")
	return cmd
}

func newLogsPruneCommand(rootOpts *RootOptions) *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete access log entries older than the retention window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withAdmin(cmd, rootOpts, func(ctx context.Context, a *admin) error {
				retention := days
				if !cmd.Flags().Changed("days") {
					cfg, err := rootOpts.loadConfig()
					if err != nil {
						return err
					}
					retention = cfg.LogRetentionDays
				}
				if retention <= 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "retention disabled, nothing pruned")
					return nil
				}

				pruner := service.NewLogPruner(a.guard, service.PrunerConfig{
					RetentionDays: retention,
					GuardTimeout:  a.bulk,
				}, zap.NewNop())
				deleted, err := pruner.PruneOnce(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "pruned %d entries older than %d days\n", deleted, retention)
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&days, "days", 0, "retention in days (default from config)")
	return cmd
}
