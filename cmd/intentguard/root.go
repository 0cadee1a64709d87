package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"intentguard/internal/app"
	"intentguard/internal/version"
	"intentguard/pkg/structure"
)

// rootOptions holds the persistent flags shared by every subcommand.
type rootOptions struct {
	root         string
	verbose      bool
	parseTimeout time.Duration
}

// open wires the guard for the selected project. The logger writes to the
// command's stderr.
func (o *rootOptions) open(ctx context.Context, cmd *cobra.Command, withEvents bool) (*app.App, error) {
	opts := []app.Option{
		app.WithLogger(app.NewLogger(cmd.ErrOrStderr(), o.verbose)),
		app.WithSource("cli"),
	}
	if o.parseTimeout > 0 {
		opts = append(opts, app.WithExtractor(structure.NewExtractor(structure.WithAstGrepTimeout(o.parseTimeout))))
	}
	if !withEvents {
		opts = append(opts, app.WithoutEvents())
	}
	return app.Open(ctx, o.root, opts...)
}

// newRootCmd creates the root intentguard command with all subcommands attached.
func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "intentguard",
		Short:         "Intent-scoped write guard for coding agents",
		Long:          "intentguard authorizes file writes against declared intents,\nclassifies each change and records an append-only provenance trace.",
		Version:       fmt.Sprintf("intentguard %s", version.String()),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("{{.Version}}\n")

	cmd.PersistentFlags().StringVar(&opts.root, "root", "", "project root (default $INTENTGUARD_ROOT or the working directory)")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log debug detail to stderr")
	cmd.PersistentFlags().DurationVar(&opts.parseTimeout, "parse-timeout", 0, "timeout for each ast-grep run (default 5s)")

	cmd.AddCommand(
		newInitCmd(opts),
		newIntentsCmd(opts),
		newCheckCmd(opts),
		newWriteCmd(opts),
		newClassifyCmd(opts),
		newTraceCmd(opts),
		newLogsCmd(opts),
		newWatchCmd(opts),
		newVersionCmd(),
	)

	return cmd
}

// newVersionCmd creates the "intentguard version" subcommand.
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the intentguard version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "intentguard %s\n", version.String())
			return nil
		},
	}
}
