package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nugget/mcptok/internal/history"
	"github.com/nugget/mcptok/internal/report"
)

func newHistoryCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded runs and per-tool averages",
		Long: `History lists runs recorded with "estimate --record", newest first,
followed by each tool's average and maximum token count across them.
With --run, it shows the per-tool results of a single recorded run.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHistory(cmd, o)
		},
	}
	cmd.Flags().StringVar(&o.server, "server", "", "Only show runs against this server URL")
	cmd.Flags().IntVarP(&o.limit, "limit", "n", 20, "Maximum number of runs to show")
	cmd.Flags().StringVar(&o.runID, "run", "", "Show the tool results of one run by ID")
	cmd.Flags().StringVar(&o.dbPath, "db", "", "History database path (default from settings)")
	return cmd
}

func runHistory(cmd *cobra.Command, o *options) error {
	cfg, err := o.settings(cmd)
	if err != nil {
		return err
	}
	format, err := o.format()
	if err != nil {
		return err
	}

	store, err := history.NewStore(cfg.HistoryDB)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmd.Context()
	if o.runID != "" {
		results, err := store.Tools(ctx, o.runID)
		if err != nil {
			return err
		}
		if len(results) == 0 {
			return fmt.Errorf("no recorded run with id %q", o.runID)
		}
		return report.WriteRunTools(cmd.OutOrStdout(), format, results)
	}

	runs, err := store.Recent(ctx, o.server, o.limit)
	if err != nil {
		return err
	}
	stats, err := store.ToolSummary(ctx, o.server)
	if err != nil {
		return err
	}
	return report.WriteHistory(cmd.OutOrStdout(), format, runs, stats)
}
