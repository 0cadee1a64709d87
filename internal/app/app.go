// Package app assembles the guard and its collaborators from a project root.
// Both binaries build on it.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"intentguard/pkg/classify"
	"intentguard/pkg/config"
	"intentguard/pkg/eventlog"
	"intentguard/pkg/guard"
	"intentguard/pkg/intent"
	"intentguard/pkg/structure"
	"intentguard/pkg/trace"
)

// App is a wired guard for one project.
type App struct {
	Paths      *config.Paths
	Policy     config.Policy
	Intents    *intent.Store
	Classifier *classify.Classifier
	Recorder   *trace.Recorder
	Events     *eventlog.Log // nil when opened WithoutEvents
	Guard      *guard.Guard
	Logger     *slog.Logger
}

type options struct {
	logger    *slog.Logger
	source    string
	noEvents  bool
	extractor *structure.Extractor
}

// Option configures Open.
type Option func(*options)

// WithLogger sets the logger shared by every component.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithSource labels events written by this process.
func WithSource(name string) Option {
	return func(o *options) { o.source = name }
}

// WithoutEvents skips opening the state database.
func WithoutEvents() Option {
	return func(o *options) { o.noEvents = true }
}

// WithExtractor overrides the structural metrics extractor.
func WithExtractor(e *structure.Extractor) Option {
	return func(o *options) { o.extractor = e }
}

// NewLogger returns a text logger on w at info level, or debug when verbose.
func NewLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// Open resolves paths under root (see config.ResolvePaths), loads the guard
// policy and wires a Guard. The intents file is read lazily on first use.
func Open(ctx context.Context, root string, opts ...Option) (*App, error) {
	o := options{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(&o)
	}

	paths, err := config.ResolvePaths(root)
	if err != nil {
		return nil, err
	}
	policy, err := config.LoadPolicy(paths.PolicyPath)
	if err != nil {
		return nil, err
	}
	policy = config.ApplyEnv(policy)

	store := intent.NewStore(paths.IntentsPath, intent.WithLogger(o.logger))
	extractor := o.extractor
	if extractor == nil {
		extractor = structure.NewExtractor()
	}
	classifier := classify.NewClassifier(policy.Classifier, extractor, o.logger)
	recorder := trace.NewRecorder(paths.TracePath(policy),
		trace.WithRoot(paths.Root),
		trace.WithLogger(o.logger),
	)

	a := &App{
		Paths:      paths,
		Policy:     policy,
		Intents:    store,
		Classifier: classifier,
		Recorder:   recorder,
		Logger:     o.logger,
	}

	guardOpts := []guard.Option{guard.WithLogger(o.logger)}
	if !o.noEvents {
		events, err := eventlog.Open(ctx, paths.StateDBPath)
		if err != nil {
			return nil, fmt.Errorf("open state database: %w", err)
		}
		a.Events = events
		guardOpts = append(guardOpts, guard.WithEvents(events))
	}

	cfg := guard.ConfigFromPolicy(paths.Root, policy)
	cfg.Source = o.source
	cfg.Protected = paths.Protected(policy)
	a.Guard = guard.New(cfg, store, classifier, recorder, guardOpts...)
	return a, nil
}

// Close releases the state database.
func (a *App) Close() error {
	return a.Events.Close()
}
