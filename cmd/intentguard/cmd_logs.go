package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"intentguard/pkg/eventlog"
	"intentguard/pkg/protocol"
)

// logsConfig holds configuration for the logs command.
type logsConfig struct {
	intentID  string
	eventType string
	tail      int
}

// newLogsCmd creates the "intentguard logs" subcommand.
func newLogsCmd(opts *rootOptions) *cobra.Command {
	var cfg logsConfig

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show guard decision events",
		Long:  "Displays authorizations, rejections, writes and trace failures from\nthe state database, oldest first.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.open(cmd.Context(), cmd, true)
			if err != nil {
				return err
			}
			defer a.Close()

			events, err := a.Events.Query(cmd.Context(), eventlog.QueryOpts{
				IntentID:  cfg.intentID,
				EventType: cfg.eventType,
				Limit:     cfg.tail,
			})
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if len(events) == 0 {
				fmt.Fprintln(w, "no events found")
				return nil
			}

			st := newStyles(w)
			// Query returns newest first.
			for i := len(events) - 1; i >= 0; i-- {
				formatEvent(w, st, &events[i])
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&cfg.intentID, "intent", "", "only events for this intent")
	cmd.Flags().StringVar(&cfg.eventType, "type", "", "only events of this type (authorized, rejected, written, write_failed, traced, trace_failed, config_defect)")
	cmd.Flags().IntVar(&cfg.tail, "tail", 20, "number of recent events to show (0 = all)")

	return cmd
}

// formatEvent writes a single event line.
func formatEvent(w io.Writer, st styles, evt *eventlog.Event) {
	kind := evt.Type
	switch evt.Type {
	case protocol.EventAuthorized, protocol.EventWritten, protocol.EventTraced:
		kind = st.OK(kind)
	case protocol.EventRejected:
		kind = st.Warn(kind)
	default:
		kind = st.Fail(kind)
	}

	parts := []string{evt.CreatedAt.Format(time.RFC3339), kind, "[" + evt.Source + "]"}
	if evt.IntentID != "" {
		parts = append(parts, "intent="+evt.IntentID)
	}
	if evt.Path != "" {
		parts = append(parts, "path="+evt.Path)
	}
	if evt.MutationClass != "" {
		parts = append(parts, "class="+evt.MutationClass)
	}
	if evt.Reason != "" {
		parts = append(parts, st.Muted("reason="+evt.Reason))
	}
	fmt.Fprintln(w, strings.Join(parts, " "))
}
