package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// newIntentsCmd creates the "intentguard intents" subcommand.
func newIntentsCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "intents",
		Short: "List declared intents and their owned scope",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.open(cmd.Context(), cmd, false)
			if err != nil {
				return err
			}
			defer a.Close()

			intents, err := a.Intents.Load()
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				return enc.Encode(intents)
			}
			if len(intents) == 0 {
				fmt.Fprintln(w, "no intents declared")
				return nil
			}

			st := newStyles(w)
			tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSTATUS\tNAME\tSCOPE")
			for _, in := range intents {
				status := string(in.Status)
				if !in.Active() {
					status = st.Muted(status)
				}
				scope := strings.Join(in.OwnedScope, ", ")
				if scope == "" {
					scope = st.Muted("(none)")
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", in.ID, status, in.Name, scope)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print intents as JSON")

	return cmd
}
