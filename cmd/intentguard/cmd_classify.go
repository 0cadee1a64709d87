package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

// newClassifyCmd creates the "intentguard classify" subcommand.
func newClassifyCmd(opts *rootOptions) *cobra.Command {
	var before, after string

	cmd := &cobra.Command{
		Use:   "classify <path>",
		Short: "Classify a change without writing or tracing it",
		Long: "Fingerprints two versions of <path> and prints the mutation class.\n" +
			"--before defaults to the current content of <path>; --after is required.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd.Context(), cmd, false)
			if err != nil {
				return err
			}
			defer a.Close()

			target := args[0]
			if before == "" {
				before = target
				if !filepath.IsAbs(before) {
					before = filepath.Join(a.Paths.Root, before)
				}
			}
			beforeSrc, err := os.ReadFile(before) //nolint:gosec // user-supplied input file
			if err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("read before: %w", err)
			}
			afterSrc, err := os.ReadFile(after) //nolint:gosec // user-supplied input file
			if err != nil {
				return fmt.Errorf("read after: %w", err)
			}
			if beforeSrc == nil {
				beforeSrc = afterSrc
			}

			d := a.Classifier.Classify(cmd.Context(), target, beforeSrc, afterSrc)
			w := cmd.OutOrStdout()
			st := newStyles(w)
			fmt.Fprintf(w, "%s ratio=%.3f nodes=%d->%d functions=%d->%d\n",
				st.OK(string(d.Class)), d.Ratio,
				d.Before.TotalNodes, d.After.TotalNodes,
				d.Before.FunctionCount, d.After.FunctionCount)
			return nil
		},
	}

	cmd.Flags().StringVar(&before, "before", "", "file holding the previous content (default: <path>)")
	cmd.Flags().StringVar(&after, "after", "", "file holding the new content")
	_ = cmd.MarkFlagRequired("after")

	return cmd
}
