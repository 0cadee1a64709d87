package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"intentguard/pkg/guard"
)

// newWriteCmd creates the "intentguard write" subcommand.
func newWriteCmd(opts *rootOptions) *cobra.Command {
	var from string

	cmd := &cobra.Command{
		Use:   "write <intent-id> <path>",
		Short: "Write a file through the guard",
		Long: "Authorizes the write, backs up the current file, replaces it atomically,\n" +
			"classifies the change and appends a trace record.\n" +
			"Content is read from --from, or from stdin when --from is omitted.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := readContent(cmd.InOrStdin(), from)
			if err != nil {
				return err
			}

			a, err := opts.open(cmd.Context(), cmd, true)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.Guard.Write(cmd.Context(), guard.Request{IntentID: args[0], Path: args[1], Content: content})
			w := cmd.OutOrStdout()
			st := newStyles(w)
			if err != nil {
				fmt.Fprintf(w, "%s %s\n", st.Fail(string(res.State)), res.Path)
				if res.BackupPath != "" {
					fmt.Fprintf(w, "backup kept at %s\n", res.BackupPath)
				}
				return err
			}

			if !res.State.Terminal() {
				fmt.Fprintf(w, "%s %s %s\n", st.Warn(string(res.State)), res.Path, res.Decision.Class)
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: write applied but not traced: %v\n", res.TraceErr)
				return nil
			}

			fmt.Fprintf(w, "%s %s %s %s\n", st.OK(string(res.State)), res.Path, res.Decision.Class, st.Muted("record "+res.Record.ID))
			if res.BackupPath != "" {
				fmt.Fprintf(w, "backup kept at %s\n", res.BackupPath)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "read new content from this file instead of stdin")

	return cmd
}

// readContent reads the new file content from path, or from stdin when path
// is empty.
func readContent(stdin io.Reader, path string) ([]byte, error) {
	if path == "" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path) //nolint:gosec // user-supplied input file
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}
