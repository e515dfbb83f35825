// Mcptok estimates how many tokens an MCP server's tools cost a model.
//
// It lists the server's tools over the streamable HTTP transport, calls
// each tool, and counts the tokens in the tools/list response and in
// every tool result. Settings come from flags, an optional mcptok.yaml
// (see [config.DefaultSearchPaths]) and a .env file in the working
// directory.
//
// Usage:
//
//	mcptok <server-url>                   Estimate every tool
//	mcptok estimate <server-url> -t f     Estimate the tools listed in f
//	mcptok tools <server-url>             Show per-tool definition costs
//	mcptok history                        Show recorded runs
//	mcptok init [dir]                     Write starter settings files
//	mcptok version                        Print version and build information
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// main is intentionally minimal. It constructs the OS-level environment
// (context, stdio, argv) and delegates immediately to [run]. This keeps
// os.Exit, os.Stdout, and os.Args out of the application logic so that
// every command can be driven from tests.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %s\n", err)
	}

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		stop()
		os.Exit(1)
	}
}

// run is the real entry point for the mcptok command. Reports go to
// stdout and logs to stderr. Flags are bound to a fresh command tree on
// every call, so tests may call run concurrently.
//
// run returns a non-nil error only when the server's tool list cannot be
// fetched or the invocation itself is invalid. Individual tool failures
// are part of the report.
func run(ctx context.Context, stdout, stderr io.Writer, args []string) error {
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	o := &options{}

	root := &cobra.Command{
		Use:   "mcptok [server-url]",
		Short: "Estimate the token cost of an MCP server's tools",
		Long: `mcptok calls the tools of an MCP server over streamable HTTP and counts
the tokens in each result, plus the tokens of the tools/list response a
model reads at initialization.

With a server URL and no subcommand it runs "estimate".`,
		Args:              cobra.MaximumNArgs(1),
		DisableAutoGenTag: true,
		SilenceUsage:      true,
		SilenceErrors:     true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && !cmd.Flags().Changed("tools-config") {
				return cmd.Help()
			}
			return runEstimate(cmd, o, args)
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	o.addGlobalFlags(root)
	o.addEstimateFlags(root.Flags())

	root.AddCommand(
		newEstimateCmd(o),
		newToolsCmd(o),
		newHistoryCmd(o),
		newInitCmd(),
		newVersionCmd(o),
	)
	return root
}
