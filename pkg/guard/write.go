package guard

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"intentguard/pkg/classify"
	"intentguard/pkg/config"
	"intentguard/pkg/eventlog"
	"intentguard/pkg/protocol"
	"intentguard/pkg/trace"
)

const newFileMode fs.FileMode = 0o644

// Request is one proposed write.
type Request struct {
	IntentID string
	Path     string // absolute or root-relative
	Content  []byte
}

// Result describes how far a write got.
type Result struct {
	State          State
	Path           string // root-relative once authorized, as requested otherwise
	MatchedPattern string
	Existed        bool   // the target existed before the write
	BackupPath     string // backup left on disk, empty when none was kept
	Decision       classify.Decision
	Record         *protocol.TraceRecord // nil unless State is TRACED
	TraceErr       error                 // set when the write landed but tracing failed
}

// Write authorizes req, backs up the current target, replaces it atomically,
// classifies the change and appends a trace record.
//
// The returned Result is never nil. The error is non-nil only when nothing
// was written: a rejection, a configuration defect, or a *protocol.IOError
// from the backup or write step. A trace failure after a successful write is
// reported in Result.TraceErr and leaves the backup in place.
func (g *Guard) Write(ctx context.Context, req Request) (*Result, error) {
	res := &Result{State: StatePendingAuth, Path: req.Path}

	auth, err := g.Authorize(ctx, req.IntentID, req.Path)
	if err != nil {
		res.advance(StateRejected)
		return res, err
	}
	res.advance(StateAuthorized)
	res.Path = auth.RelPath
	res.MatchedPattern = auth.MatchedPattern

	before, mode, existed, err := readExisting(auth.AbsPath)
	if err != nil {
		return g.writeFailed(ctx, res, auth, &protocol.IOError{Op: "backup", Path: auth.RelPath, Err: err})
	}
	res.Existed = existed
	if existed && g.cfg.Backup != config.BackupOff {
		bak := auth.AbsPath + protocol.BackupSuffix
		if err := os.WriteFile(bak, before, mode); err != nil {
			return g.writeFailed(ctx, res, auth, &protocol.IOError{Op: "backup", Path: auth.RelPath, Err: err})
		}
		res.BackupPath = bak
		g.logger.Debug("backup written", "path", bak)
	}
	if !existed {
		before = req.Content
	}
	res.advance(StateBackedUp)

	if err := g.writeFile(auth.AbsPath, req.Content, mode); err != nil {
		return g.writeFailed(ctx, res, auth, &protocol.IOError{Op: "write", Path: auth.RelPath, Err: err})
	}
	res.advance(StateWritten)
	g.logger.Info("file written", "path", auth.RelPath, "bytes", len(req.Content), "created", !existed)
	g.emit(ctx, eventlog.Event{
		Type: protocol.EventWritten, Source: g.cfg.Source, IntentID: req.IntentID, Path: auth.RelPath,
	})

	decision, rec, err := g.Trace(ctx, req.IntentID, auth.RelPath, before, req.Content)
	res.Decision = decision
	if err != nil {
		res.TraceErr = err
		return res, nil
	}
	res.Record = &rec
	res.advance(StateTraced)

	if res.BackupPath != "" && g.cfg.Backup == config.BackupDelete {
		if err := os.Remove(res.BackupPath); err != nil {
			g.logger.Warn("backup cleanup failed", "path", res.BackupPath, "err", err)
		} else {
			res.BackupPath = ""
		}
	}
	return res, nil
}

// Trace classifies an applied write of relPath and appends its trace record.
// relPath must already be authorized and root-relative.
func (g *Guard) Trace(ctx context.Context, intentID, relPath string, before, after []byte) (classify.Decision, protocol.TraceRecord, error) {
	decision := g.classifier.Classify(ctx, relPath, before, after)
	g.logger.Debug("write classified",
		"path", relPath,
		"class", decision.Class,
		"ratio", decision.Ratio,
		"nodes_before", decision.Before.TotalNodes,
		"nodes_after", decision.After.TotalNodes,
		"funcs_before", decision.Before.FunctionCount,
		"funcs_after", decision.After.FunctionCount,
	)

	rec, err := g.tracer.Record(ctx, trace.Entry{
		RelativePath: relPath,
		Content:      after,
		IntentID:     intentID,
		Class:        decision.Class,
		SessionURL:   g.cfg.SessionURL,
		Contributor:  g.cfg.Contributor,
	})
	ev := eventlog.Event{
		Type: protocol.EventTraced, Source: g.cfg.Source, IntentID: intentID,
		Path: relPath, MutationClass: string(decision.Class),
	}
	if err != nil {
		g.logger.Error("trace append failed, write kept", "path", relPath, "err", err)
		ev.Type, ev.Reason = protocol.EventTraceFailed, err.Error()
		g.emit(ctx, ev)
		return decision, protocol.TraceRecord{}, err
	}
	g.emit(ctx, ev)
	return decision, rec, nil
}

func (g *Guard) writeFailed(ctx context.Context, res *Result, auth *Authorization, err error) (*Result, error) {
	res.advance(StateWriteFailed)
	g.logger.Error("write failed", "path", auth.RelPath, "backup", res.BackupPath, "err", err)
	g.emit(ctx, eventlog.Event{
		Type: protocol.EventWriteFailed, Source: g.cfg.Source, IntentID: auth.Intent.ID,
		Path: auth.RelPath, Reason: err.Error(),
	})
	return res, err
}

// readExisting returns the current content and mode of path. existed is
// false, with a nil error, when path does not exist.
func readExisting(path string) (data []byte, mode fs.FileMode, existed bool, err error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, newFileMode, false, nil
	}
	if err != nil {
		return nil, 0, false, err
	}
	if !info.Mode().IsRegular() {
		return nil, 0, false, fmt.Errorf("not a regular file: %s", info.Mode().Type())
	}
	data, err = os.ReadFile(path) //nolint:gosec // path confined to project root
	if err != nil {
		return nil, 0, false, err
	}
	return data, info.Mode().Perm(), true, nil
}

// writeAtomic replaces path with data via a temp file in the same directory
// and a rename, so readers see the old or the new content and never a mix.
func writeAtomic(path string, data []byte, mode fs.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil { //nolint:gosec // source tree directories
		return fmt.Errorf("create parent dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".intentguard-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		cleanup()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}
