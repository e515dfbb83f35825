package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/nugget/mcptok/internal/config"
	"github.com/nugget/mcptok/internal/estimate"
	"github.com/nugget/mcptok/internal/history"
	"github.com/nugget/mcptok/internal/mcp"
	"github.com/nugget/mcptok/internal/report"
	"github.com/nugget/mcptok/internal/tokenizer"
)

func newEstimateCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "estimate [server-url]",
		Short: "Call each tool and count the tokens it returns",
		Long: `Estimate lists the server's tools, counts the tokens of the tools/list
response, then calls every tool (or only those in --tools-config, with
their arguments) and counts the tokens of each result.

A failing tool is reported and skipped. The command fails only when the
tool list itself cannot be fetched.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEstimate(cmd, o, args)
		},
	}
	o.addEstimateFlags(cmd.Flags())
	return cmd
}

func newToolsCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "tools [server-url]",
		Short: "Show the token cost of each tool definition",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTools(cmd, o, args)
		},
	}
}

// serverURL picks the positional URL over the settings file value.
func serverURL(cfg *config.Config, args []string) (string, error) {
	if len(args) > 0 && args[0] != "" {
		return args[0], nil
	}
	if cfg.ServerURL != "" {
		return cfg.ServerURL, nil
	}
	return "", errors.New("no server URL given (pass one or set server_url in " + config.FileName + ")")
}

// newEstimator wires the MCP client and tokenizer for cfg.
func newEstimator(cfg *config.Config, url string, log *slog.Logger) (*estimate.Estimator, error) {
	counter, err := tokenizer.New(cfg.Encoding)
	if err != nil {
		return nil, err
	}

	session := mcp.NewSession(mcp.SessionConfig{
		URL:      url,
		Token:    cfg.Token,
		Timeout:  cfg.Timeout,
		Insecure: cfg.Insecure,
		Logger:   log,
	})
	client := mcp.NewClient(session, log)
	return estimate.New(client, counter, log), nil
}

func runEstimate(cmd *cobra.Command, o *options, args []string) error {
	ctx := cmd.Context()
	stdout := cmd.OutOrStdout()

	cfg, err := o.settings(cmd)
	if err != nil {
		return err
	}
	format, err := o.format()
	if err != nil {
		return err
	}
	url, err := serverURL(cfg, args)
	if err != nil {
		return err
	}
	log := logger(cfg, cmd.ErrOrStderr())

	var inputs []config.ToolInput
	if o.toolsConfig != "" {
		inputs, err = config.LoadToolInputs(o.toolsConfig)
		if err != nil {
			return err
		}
	}

	est, err := newEstimator(cfg, url, log)
	if err != nil {
		return err
	}

	opts := estimate.Options{Server: url, Inputs: inputs}
	if rate, ok := cfg.Rate(); ok {
		opts.CostPerMillion = &rate
	}

	rep, runErr := est.Run(ctx, opts)
	if rep == nil {
		return runErr
	}

	if err := report.Write(stdout, format, rep); err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	if o.record && runErr == nil {
		recordRun(cmd, cfg, rep, log)
	}
	return runErr
}

// recordRun appends rep to the history database. Failures are logged
// and never change the exit status.
func recordRun(cmd *cobra.Command, cfg *config.Config, rep *estimate.Report, log *slog.Logger) {
	store, err := history.NewStore(cfg.HistoryDB)
	if err != nil {
		log.Error("history unavailable", "path", cfg.HistoryDB, "error", err)
		return
	}
	defer store.Close()

	encoding := cfg.Encoding
	if encoding == "" {
		encoding = tokenizer.DefaultEncoding
	}

	id, err := store.Record(cmd.Context(), history.FromReport(rep, encoding))
	if err != nil {
		log.Error("failed to record run", "path", cfg.HistoryDB, "error", err)
		return
	}
	log.Info("run recorded", "id", id, "path", cfg.HistoryDB)
}

func runTools(cmd *cobra.Command, o *options, args []string) error {
	cfg, err := o.settings(cmd)
	if err != nil {
		return err
	}
	format, err := o.format()
	if err != nil {
		return err
	}
	url, err := serverURL(cfg, args)
	if err != nil {
		return err
	}
	log := logger(cfg, cmd.ErrOrStderr())

	est, err := newEstimator(cfg, url, log)
	if err != nil {
		return err
	}

	defs, err := est.Describe(cmd.Context())
	if err != nil {
		return err
	}
	return report.WriteDefinitions(cmd.OutOrStdout(), format, defs)
}
