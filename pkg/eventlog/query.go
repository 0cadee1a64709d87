package eventlog

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// QueryOpts specifies filter criteria for querying events.
type QueryOpts struct {
	// IntentID filters events to a specific intent.
	IntentID string

	// EventType filters to a specific event type (e.g., "rejected", "traced").
	EventType string

	// After filters events created after this time (inclusive)
	After *time.Time

	// Limit restricts the number of results (0 = no limit)
	Limit int
}

// Query retrieves events matching opts, newest first.
// Returns an empty slice if no events match.
func (l *Log) Query(ctx context.Context, opts QueryOpts) ([]Event, error) {
	query, args := buildQuery(opts)

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		var e Event
		var createdAt string

		err := rows.Scan(
			&e.ID,
			&e.Type,
			&e.Source,
			&e.IntentID,
			&e.Path,
			&e.Reason,
			&e.MutationClass,
			&createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}

		if createdAt != "" {
			ts, err := time.Parse(time.RFC3339Nano, createdAt)
			if err != nil {
				return nil, fmt.Errorf("parse created_at %q: %w", createdAt, err)
			}
			e.CreatedAt = ts
		}

		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}

	return events, nil
}

// buildQuery constructs the SQL query and arguments from QueryOpts.
func buildQuery(opts QueryOpts) (string, []any) {
	var conditions []string
	var args []any

	query := `SELECT id, type, source, COALESCE(intent_id, ''), COALESCE(path, ''),
	COALESCE(reason, ''), COALESCE(mutation_class, ''), created_at FROM events WHERE 1=1`

	if opts.IntentID != "" {
		conditions = append(conditions, "intent_id = ?")
		args = append(args, opts.IntentID)
	}

	if opts.EventType != "" {
		conditions = append(conditions, "type = ?")
		args = append(args, opts.EventType)
	}

	if opts.After != nil {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, opts.After.UTC().Format(tsLayout))
	}

	if len(conditions) > 0 {
		query += " AND " + strings.Join(conditions, " AND ")
	}

	query += " ORDER BY id DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", opts.Limit)
	}

	return query, args
}
