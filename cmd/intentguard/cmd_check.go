package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"intentguard/pkg/protocol"
)

// newCheckCmd creates the "intentguard check" subcommand.
func newCheckCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check <intent-id> <path>...",
		Short: "Check whether an intent may write the given paths",
		Long:  "Authorizes each path against the intent's owned scope without writing.\nExits 2 when any path is denied.",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd.Context(), cmd, true)
			if err != nil {
				return err
			}
			defer a.Close()

			intentID, targets := args[0], args[1:]
			w := cmd.OutOrStdout()
			st := newStyles(w)

			var firstDenial error
			for _, target := range targets {
				auth, err := a.Guard.Authorize(cmd.Context(), intentID, target)
				var authErr *protocol.AuthorizationError
				switch {
				case err == nil:
					fmt.Fprintf(w, "%s %s %s\n", st.OK("ALLOW"), auth.RelPath, st.Muted("("+auth.MatchedPattern+")"))
				case errors.As(err, &authErr):
					fmt.Fprintf(w, "%s  %s %s\n", st.Fail("DENY"), target, st.Muted("("+string(authErr.Reason)+")"))
					if firstDenial == nil {
						firstDenial = err
					}
				default:
					return err
				}
			}
			return firstDenial
		},
	}
}
