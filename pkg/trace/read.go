package trace

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"intentguard/pkg/protocol"
)

const maxLineSize = 1 << 20

// Log is the parsed content of a trace file.
type Log struct {
	Records []protocol.TraceRecord
	// Malformed counts lines that were not valid trace records.
	Malformed int
}

// ReadAll parses every line of the trace file at path. A missing file is an
// empty log. Malformed lines are counted and skipped.
func ReadAll(path string) (*Log, error) {
	f, err := os.Open(path) //nolint:gosec // trace path from config
	if errors.Is(err, fs.ErrNotExist) {
		return &Log{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open trace log: %w", err)
	}
	defer func() {
		_ = f.Close() //nolint:errcheck // read-only
	}()

	log := &Log{}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		rec, err := decodeRecord(line)
		if err != nil {
			log.Malformed++
			continue
		}
		log.Records = append(log.Records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read trace log: %w", err)
	}
	return log, nil
}

// ForFile returns records whose relative path equals rel, oldest first.
func (l *Log) ForFile(rel string) []protocol.TraceRecord {
	var out []protocol.TraceRecord
	for _, rec := range l.Records {
		if rec.File.RelativePath == rel {
			out = append(out, rec)
		}
	}
	return out
}

// ForIntent returns records linked to intentID, oldest first.
func (l *Log) ForIntent(intentID string) []protocol.TraceRecord {
	var out []protocol.TraceRecord
	for _, rec := range l.Records {
		if rec.File.Conversation.RelatedIntentID == intentID {
			out = append(out, rec)
		}
	}
	return out
}

// Latest returns the most recent record for each traced file, keyed by
// relative path.
func (l *Log) Latest() map[string]protocol.TraceRecord {
	latest := make(map[string]protocol.TraceRecord)
	for _, rec := range l.Records {
		latest[rec.File.RelativePath] = rec
	}
	return latest
}

// Status is the outcome of verifying one traced file.
type Status string

// Verification outcomes.
const (
	StatusOK      Status = "ok"
	StatusDrift   Status = "drift"
	StatusMissing Status = "missing"
)

// Finding reports the verification result for one file.
type Finding struct {
	Path     string `json:"path"`
	Status   Status `json:"status"`
	Recorded string `json:"recorded_hash"`
	Current  string `json:"current_hash,omitempty"`
	RecordID string `json:"record_id"`
}

// Verify recomputes the hash of every traced file under root and compares it
// with the file's latest record. Drift means the file changed without a
// traced write.
func (l *Log) Verify(root string) ([]Finding, error) {
	latest := l.Latest()
	paths := make([]string, 0, len(latest))
	for p := range latest {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	findings := make([]Finding, 0, len(paths))
	for _, rel := range paths {
		rec := latest[rel]
		f := Finding{Path: rel, Recorded: rec.File.ContentHash, RecordID: rec.ID}

		data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
		switch {
		case errors.Is(err, fs.ErrNotExist):
			f.Status = StatusMissing
		case err != nil:
			return nil, fmt.Errorf("verify %s: %w", rel, err)
		default:
			f.Current = HashContent(data)
			if f.Current == f.Recorded {
				f.Status = StatusOK
			} else {
				f.Status = StatusDrift
			}
		}
		findings = append(findings, f)
	}
	return findings, nil
}

// decodeRecord parses one line and rejects objects that are not trace records.
func decodeRecord(line []byte) (protocol.TraceRecord, error) {
	var rec protocol.TraceRecord
	if err := json.Unmarshal(line, &rec); err != nil {
		return rec, err
	}
	if rec.ID == "" || rec.File.RelativePath == "" || !strings.HasPrefix(rec.File.ContentHash, protocol.HashPrefix) {
		return rec, errors.New("trace: not a trace record")
	}
	return rec, nil
}
