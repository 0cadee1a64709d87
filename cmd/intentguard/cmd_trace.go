package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"intentguard/pkg/protocol"
	"intentguard/pkg/trace"
)

// errDrift is returned by "trace verify" when any traced file changed.
var errDrift = errors.New("traced files changed outside the guard")

// newTraceCmd creates the "intentguard trace" command group.
func newTraceCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Inspect the provenance trace log",
	}

	cmd.AddCommand(newTraceListCmd(opts), newTraceVerifyCmd(opts))

	return cmd
}

// newTraceListCmd creates the "intentguard trace list" subcommand.
func newTraceListCmd(opts *rootOptions) *cobra.Command {
	var (
		intentID string
		path     string
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List trace records, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.open(cmd.Context(), cmd, false)
			if err != nil {
				return err
			}
			defer a.Close()

			log, err := trace.ReadAll(a.Recorder.Path())
			if err != nil {
				return err
			}
			records := log.Records
			if intentID != "" {
				records = log.ForIntent(intentID)
			}
			if path != "" {
				records = filterPath(records, path)
			}

			w := cmd.OutOrStdout()
			if log.Malformed > 0 {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: skipped %d malformed trace lines\n", log.Malformed)
			}
			if asJSON {
				enc := json.NewEncoder(w)
				for _, rec := range records {
					if err := enc.Encode(rec); err != nil {
						return err
					}
				}
				return nil
			}
			if len(records) == 0 {
				fmt.Fprintln(w, "no trace records")
				return nil
			}

			st := newStyles(w)
			tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TIMESTAMP\tINTENT\tCLASS\tPATH\tHASH")
			for _, rec := range records {
				conv := rec.File.Conversation
				class := string(conv.MutationClass)
				if conv.MutationClass == protocol.IntentEvolution {
					class = st.Warn(class)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
					rec.Timestamp, conv.RelatedIntentID, class, rec.File.RelativePath, st.Muted(shortHash(rec.File.ContentHash)))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&intentID, "intent", "", "only records for this intent")
	cmd.Flags().StringVar(&path, "path", "", "only records for this root-relative path")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print records as JSON Lines")

	return cmd
}

// newTraceVerifyCmd creates the "intentguard trace verify" subcommand.
func newTraceVerifyCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Compare each traced file with its latest recorded hash",
		Long:  "Recomputes the SHA-256 of every traced file and reports files that\nchanged or disappeared since their last trace record. Exits 1 on drift.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.open(cmd.Context(), cmd, false)
			if err != nil {
				return err
			}
			defer a.Close()

			log, err := trace.ReadAll(a.Recorder.Path())
			if err != nil {
				return err
			}
			findings, err := log.Verify(a.Paths.Root)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			st := newStyles(w)
			drift := 0
			for _, f := range findings {
				switch f.Status {
				case trace.StatusOK:
					fmt.Fprintf(w, "%s      %s\n", st.OK("ok"), f.Path)
				case trace.StatusDrift:
					drift++
					fmt.Fprintf(w, "%s   %s %s\n", st.Fail("drift"), f.Path, st.Muted("record "+f.RecordID))
				case trace.StatusMissing:
					drift++
					fmt.Fprintf(w, "%s %s %s\n", st.Fail("missing"), f.Path, st.Muted("record "+f.RecordID))
				}
			}
			if drift > 0 {
				return fmt.Errorf("%w: %d of %d", errDrift, drift, len(findings))
			}
			if len(findings) == 0 {
				fmt.Fprintln(w, "no trace records")
			}
			return nil
		},
	}
}

func filterPath(records []protocol.TraceRecord, path string) []protocol.TraceRecord {
	var out []protocol.TraceRecord
	for _, rec := range records {
		if rec.File.RelativePath == path {
			out = append(out, rec)
		}
	}
	return out
}

// shortHash trims "sha256:<hex>" to the prefix and 12 hex digits.
func shortHash(h string) string {
	const n = len(protocol.HashPrefix) + 12
	if len(h) <= n {
		return h
	}
	return h[:n]
}
