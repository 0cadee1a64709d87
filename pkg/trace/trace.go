// Package trace appends provenance records for authorized writes to an
// append-only JSON Lines log and reads them back for inspection.
package trace

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"intentguard/pkg/protocol"
)

const revisionTimeout = 2 * time.Second

// Entry is the information needed to trace one write.
type Entry struct {
	RelativePath string
	Content      []byte // post-write bytes
	IntentID     string
	Class        protocol.MutationClass
	SessionURL   string
	Contributor  protocol.Contributor
}

// RevisionFunc returns the current VCS revision of root.
type RevisionFunc func(ctx context.Context, root string) string

// Recorder appends trace records to a JSON Lines file.
type Recorder struct {
	path     string
	root     string
	now      func() time.Time
	newID    func() string
	revision RevisionFunc
	logger   *slog.Logger
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) { r.now = now }
}

// WithIDFunc overrides record id generation.
func WithIDFunc(f func() string) Option {
	return func(r *Recorder) { r.newID = f }
}

// WithRevision overrides VCS revision lookup.
func WithRevision(f RevisionFunc) Option {
	return func(r *Recorder) { r.revision = f }
}

// WithRoot sets the directory the VCS revision is read from.
func WithRoot(root string) Option {
	return func(r *Recorder) { r.root = root }
}

// WithLogger sets the recorder's logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Recorder) { r.logger = l }
}

// NewRecorder returns a Recorder appending to path.
func NewRecorder(path string, opts ...Option) *Recorder {
	r := &Recorder{
		path:     path,
		root:     ".",
		now:      time.Now,
		newID:    func() string { return uuid.New().String() },
		revision: GitRevision,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// DefaultPath returns the trace log location under root.
func DefaultPath(root string) string {
	return filepath.Join(root, protocol.OrchestrationDir, protocol.TraceFile)
}

// Path returns the log file.
func (r *Recorder) Path() string { return r.path }

// Build assembles the record for e without writing it.
func (r *Recorder) Build(ctx context.Context, e Entry) protocol.TraceRecord {
	return protocol.TraceRecord{
		ID:          r.newID(),
		Timestamp:   r.now().UTC().Format(time.RFC3339Nano),
		VCSRevision: r.revision(ctx, r.root),
		File: protocol.FileTrace{
			RelativePath: e.RelativePath,
			ContentHash:  HashContent(e.Content),
			Conversation: protocol.Conversation{
				SessionURL:      e.SessionURL,
				Contributor:     e.Contributor,
				LineRange:       LineRange(e.Content),
				RelatedIntentID: e.IntentID,
				MutationClass:   e.Class,
			},
		},
	}
}

// Record builds and appends the record for e.
func (r *Recorder) Record(ctx context.Context, e Entry) (protocol.TraceRecord, error) {
	rec := r.Build(ctx, e)
	if err := r.Append(rec); err != nil {
		return rec, err
	}
	return rec, nil
}

// Append writes rec as one line. The line goes out in a single write on an
// O_APPEND descriptor so concurrent appenders never interleave partial
// records.
func (r *Recorder) Append(rec protocol.TraceRecord) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return &protocol.IOError{Op: "trace", Path: r.path, Err: fmt.Errorf("marshal record: %w", err)}
	}
	line = append(line, '\n')

	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return &protocol.IOError{Op: "trace", Path: r.path, Err: err}
	}
	f, err := os.OpenFile(r.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644) //nolint:gosec // trace path from config
	if err != nil {
		return &protocol.IOError{Op: "trace", Path: r.path, Err: err}
	}
	if _, err := f.Write(line); err != nil {
		_ = f.Close()
		return &protocol.IOError{Op: "trace", Path: r.path, Err: err}
	}
	if err := f.Close(); err != nil {
		return &protocol.IOError{Op: "trace", Path: r.path, Err: err}
	}

	r.logger.Debug("trace appended", "id", rec.ID, "file", rec.File.RelativePath, "class", rec.File.Conversation.MutationClass)
	return nil
}

// HashContent returns "sha256:<lowercase hex>" of b.
func HashContent(b []byte) string {
	sum := sha256.Sum256(b)
	return protocol.HashPrefix + hex.EncodeToString(sum[:])
}

// LineRange returns [1, n] where n is the number of newline-separated lines.
func LineRange(content []byte) protocol.LineRange {
	return protocol.LineRange{1, bytes.Count(content, []byte("\n")) + 1}
}

// GitRevision returns `git rev-parse HEAD` for root, or
// protocol.UnknownRevision when git or the repository is unavailable.
func GitRevision(ctx context.Context, root string) string {
	ctx, cancel := context.WithTimeout(ctx, revisionTimeout)
	defer cancel()
	out, err := exec.CommandContext(ctx, "git", "-C", root, "rev-parse", "HEAD").Output()
	if err != nil {
		return protocol.UnknownRevision
	}
	rev := strings.TrimSpace(string(out))
	if rev == "" {
		return protocol.UnknownRevision
	}
	return rev
}
