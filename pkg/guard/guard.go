// Package guard authorizes, applies and traces file writes made on behalf of
// a declared intent.
package guard

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"

	"intentguard/pkg/classify"
	"intentguard/pkg/config"
	"intentguard/pkg/eventlog"
	"intentguard/pkg/protocol"
	"intentguard/pkg/scope"
	"intentguard/pkg/trace"
)

// IntentSource resolves intent ids. *intent.Store satisfies it.
type IntentSource interface {
	Lookup(id string) (protocol.Intent, bool, error)
}

// Classifier labels a change. *classify.Classifier satisfies it.
type Classifier interface {
	Classify(ctx context.Context, path string, before, after []byte) classify.Decision
}

// Tracer appends provenance records. *trace.Recorder satisfies it.
type Tracer interface {
	Record(ctx context.Context, e trace.Entry) (protocol.TraceRecord, error)
}

// EventSink receives decision events. *eventlog.Log satisfies it.
type EventSink interface {
	Record(ctx context.Context, e eventlog.Event) error
}

// Config holds guard settings.
type Config struct {
	Root          string               // project root; paths are confined to it
	Backup        config.BackupMode    // default delete
	RequireActive bool                 // reject intents whose status is not active
	SessionURL    string               // copied into every trace record
	Contributor   protocol.Contributor // copied into every trace record
	Source        string               // event source label (default "guard")

	// Protected lists guard-owned files no intent may write, absolute or
	// root-relative. The orchestration directory is always protected.
	Protected []string
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.Backup == "" {
		out.Backup = config.BackupDelete
	}
	if out.Source == "" {
		out.Source = "guard"
	}
	if out.Contributor.EntityType == "" {
		out.Contributor.EntityType = "AI"
	}
	return out
}

// ConfigFromPolicy derives a Config for root from a loaded policy.
func ConfigFromPolicy(root string, p config.Policy) Config {
	return Config{
		Root:          root,
		Backup:        p.Backup.Mode,
		RequireActive: p.Authorization.RequireActive,
		SessionURL:    p.Trace.SessionURL,
		Protected:     []string{p.Trace.Path},
		Contributor: protocol.Contributor{
			EntityType:      p.Trace.EntityType,
			ModelIdentifier: p.Trace.ModelIdentifier,
		},
	}
}

// Guard runs writes through authorization, backup, write, classification and
// trace. It holds no per-call state and takes no locks; the single-writer
// assumption is the caller's.
type Guard struct {
	cfg        Config
	intents    IntentSource
	classifier Classifier
	tracer     Tracer
	events     EventSink
	protected  map[string]bool // root-relative slash paths
	logger     *slog.Logger
	writeFile  func(path string, data []byte, mode fs.FileMode) error
}

// Option configures a Guard.
type Option func(*Guard)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Guard) { g.logger = l }
}

// WithEvents records every decision to sink.
func WithEvents(sink EventSink) Option {
	return func(g *Guard) { g.events = sink }
}

// New returns a Guard.
func New(cfg Config, intents IntentSource, classifier Classifier, tracer Tracer, opts ...Option) *Guard {
	g := &Guard{
		cfg:        cfg.withDefaults(),
		intents:    intents,
		classifier: classifier,
		tracer:     tracer,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		writeFile:  writeAtomic,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.protected = make(map[string]bool, len(g.cfg.Protected))
	for _, p := range g.cfg.Protected {
		if rel, _, ok := g.confine(p); ok {
			g.protected[rel] = true
		}
	}
	return g
}

// Root returns the project root.
func (g *Guard) Root() string { return g.cfg.Root }

// Authorization is a granted write permission.
type Authorization struct {
	Intent         protocol.Intent
	RelPath        string // root-relative, slash-separated
	AbsPath        string
	MatchedPattern string
}

// Authorize checks that intentID names a known intent and that one of its
// owned scope patterns covers path. path may be absolute or root-relative.
// Guard state (see Config.Protected) is never writable, whatever the intent
// owns.
//
// Denials are *protocol.AuthorizationError. A broken intents file is a
// *protocol.ConfigError and a malformed pattern a *protocol.PatternError;
// both are configuration defects, not denials.
func (g *Guard) Authorize(ctx context.Context, intentID, path string) (*Authorization, error) {
	auth, err := g.authorize(intentID, path)

	ev := eventlog.Event{Source: g.cfg.Source, IntentID: intentID, Path: path}
	var authErr *protocol.AuthorizationError
	switch {
	case err == nil:
		ev.Type, ev.Path = protocol.EventAuthorized, auth.RelPath
		g.logger.Info("write authorized", "intent", intentID, "path", auth.RelPath, "pattern", auth.MatchedPattern)
	case errors.As(err, &authErr):
		ev.Type, ev.Reason = protocol.EventRejected, string(authErr.Reason)
		g.logger.Warn("write rejected", "intent", intentID, "path", path, "reason", authErr.Reason)
	default:
		ev.Type, ev.Reason = protocol.EventConfigDefect, err.Error()
		g.logger.Error("authorization aborted", "intent", intentID, "path", path, "err", err)
	}
	g.emit(ctx, ev)

	return auth, err
}

func (g *Guard) authorize(intentID, path string) (*Authorization, error) {
	in, ok, err := g.intents.Lookup(intentID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &protocol.AuthorizationError{Reason: protocol.ReasonUnknownIntent, IntentID: intentID, Path: path}
	}
	if g.cfg.RequireActive && !in.Active() {
		return nil, &protocol.AuthorizationError{
			Reason: protocol.ReasonInactiveIntent, IntentID: intentID, Path: path, Status: string(in.Status),
		}
	}

	rel, abs, ok := g.confine(path)
	if !ok {
		return nil, &protocol.AuthorizationError{Reason: protocol.ReasonScopeViolation, IntentID: intentID, Path: path}
	}
	if g.isProtected(rel) {
		return nil, &protocol.AuthorizationError{Reason: protocol.ReasonProtectedPath, IntentID: intentID, Path: rel}
	}

	matched, ok, err := scope.MatchAny(in.OwnedScope, rel)
	if err != nil {
		var pe *protocol.PatternError
		if errors.As(err, &pe) {
			pe.IntentID = intentID
		}
		return nil, err
	}
	if !ok {
		return nil, &protocol.AuthorizationError{Reason: protocol.ReasonScopeViolation, IntentID: intentID, Path: rel}
	}

	return &Authorization{Intent: in, RelPath: rel, AbsPath: abs, MatchedPattern: matched}, nil
}

// confine maps path to a cleaned root-relative slash path and its absolute
// form. ok is false when path resolves to the root itself or outside it.
func (g *Guard) confine(path string) (rel, abs string, ok bool) {
	if path == "" {
		return "", "", false
	}
	p := filepath.FromSlash(path)
	if filepath.IsAbs(p) {
		r, err := filepath.Rel(g.cfg.Root, p)
		if err != nil {
			return "", "", false
		}
		p = r
	}
	p = filepath.Clean(p)
	if p == "." || p == ".." || strings.HasPrefix(p, ".."+string(filepath.Separator)) {
		return "", "", false
	}
	return filepath.ToSlash(p), filepath.Join(g.cfg.Root, p), true
}

// isProtected reports whether rel is guard state or a backup of it.
func (g *Guard) isProtected(rel string) bool {
	if rel == protocol.OrchestrationDir || strings.HasPrefix(rel, protocol.OrchestrationDir+"/") {
		return true
	}
	return g.protected[rel] || g.protected[strings.TrimSuffix(rel, protocol.BackupSuffix)]
}

func (g *Guard) emit(ctx context.Context, ev eventlog.Event) {
	if g.events == nil {
		return
	}
	if err := g.events.Record(ctx, ev); err != nil {
		g.logger.Warn("event log write failed", "type", ev.Type, "err", err)
	}
}
