package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newWatchCmd creates the "intentguard watch" subcommand.
func newWatchCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Watch the intents file and report reloads until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.open(cmd.Context(), cmd, false)
			if err != nil {
				return err
			}
			defer a.Close()

			w := cmd.OutOrStdout()
			st := newStyles(w)
			report := func() {
				set, err := a.Intents.Set()
				if err != nil {
					fmt.Fprintf(w, "%s %v\n", st.Fail("invalid"), err)
					return
				}
				fmt.Fprintf(w, "%s %d intents: %v\n", st.OK("loaded"), set.Len(), set.IDs())
			}

			fmt.Fprintf(w, "watching %s\n", a.Intents.Path())
			report()
			return a.Intents.Watch(cmd.Context(), report)
		},
	}
}
