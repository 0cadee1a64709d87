package intent

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"intentguard/pkg/protocol"
)

// Store reads intents from a YAML file. Loaded sets are cached and the cache
// is dropped whenever the file's modification time or size changes, so a
// long-lived process never authorizes against stale scope.
type Store struct {
	path   string
	logger *slog.Logger

	mu      sync.Mutex
	cached  *Set
	modTime time.Time
	size    int64
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithLogger sets the logger used for reload events.
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) {
		s.logger = l
	}
}

// NewStore returns a Store reading path.
func NewStore(path string, opts ...StoreOption) *Store {
	s := &Store{
		path:   path,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DefaultPath returns the intents file location under root.
func DefaultPath(root string) string {
	return filepath.Join(root, protocol.OrchestrationDir, protocol.IntentsFile)
}

// Path returns the file the store reads.
func (s *Store) Path() string { return s.path }

// Load returns the intents in declaration order.
func (s *Store) Load() ([]protocol.Intent, error) {
	set, err := s.Set()
	if err != nil {
		return nil, err
	}
	return set.All(), nil
}

// Set returns the current validated intent set, reloading from disk when the
// file changed since the last load.
func (s *Store) Set() (*Set, error) {
	info, err := os.Stat(s.path)
	if err != nil {
		s.Invalidate()
		return nil, &protocol.ConfigError{Path: s.path, Reason: "cannot read intent source", Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cached != nil && info.ModTime().Equal(s.modTime) && info.Size() == s.size {
		return s.cached, nil
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, &protocol.ConfigError{Path: s.path, Reason: "cannot read intent source", Err: err}
	}
	set, err := Parse(s.path, data)
	if err != nil {
		s.cached = nil
		return nil, err
	}

	s.cached = set
	s.modTime = info.ModTime()
	s.size = info.Size()
	s.logger.Debug("intents loaded", "path", s.path, "count", set.Len())
	return set, nil
}

// Lookup returns the intent with id from the current set. A missing intent
// is reported as ok=false, not as an error.
func (s *Store) Lookup(id string) (protocol.Intent, bool, error) {
	set, err := s.Set()
	if err != nil {
		return protocol.Intent{}, false, err
	}
	in, ok := set.Lookup(id)
	return in, ok, nil
}

// Invalidate drops the cached set; the next call reloads from disk.
func (s *Store) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cached = nil
}

// Watch invalidates the cache on file system events for the intents file
// until ctx is cancelled. onChange, if non-nil, is called after each
// debounced change. The parent directory is watched so that editors which
// replace the file by rename are still observed.
func (s *Store) Watch(ctx context.Context, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("intent: create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("intent: watch %s: %w", dir, err)
	}

	debounce := newDebounceTimer()
	defer debounce.Stop()

	target := filepath.Clean(s.path)
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			s.Invalidate()
			resetDebounceTimer(debounce)

		case <-debounce.C:
			s.logger.Info("intent source changed", "path", s.path)
			if onChange != nil {
				onChange()
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("intent watcher error", "err", err)
		}
	}
}

// Parse decodes an intents document. source names the file for errors.
func Parse(source string, data []byte) (*Set, error) {
	var doc map[string]yaml.Node
	dec := yaml.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &protocol.ConfigError{Path: source, Reason: fmt.Sprintf("empty document, expected top-level key %q", protocol.IntentsKey)}
		}
		return nil, &protocol.ConfigError{Path: source, Reason: "invalid YAML", Err: err}
	}

	node, ok := doc[protocol.IntentsKey]
	if !ok {
		return nil, &protocol.ConfigError{Path: source, Reason: fmt.Sprintf("missing top-level key %q", protocol.IntentsKey)}
	}
	if node.Kind != yaml.SequenceNode && !(node.Kind == yaml.ScalarNode && node.Tag == "!!null") {
		return nil, &protocol.ConfigError{Path: source, Reason: fmt.Sprintf("%q must be a sequence", protocol.IntentsKey)}
	}

	var intents []protocol.Intent
	if node.Kind == yaml.SequenceNode {
		for i, item := range node.Content {
			if item.Kind != yaml.MappingNode {
				return nil, &protocol.ConfigError{Path: source, Reason: fmt.Sprintf("%s[%d]: expected a mapping (line %d)", protocol.IntentsKey, i, item.Line)}
			}
			var in protocol.Intent
			if err := item.Decode(&in); err != nil {
				return nil, &protocol.ConfigError{Path: source, Reason: fmt.Sprintf("%s[%d]: malformed entry (line %d)", protocol.IntentsKey, i, item.Line), Err: err}
			}
			intents = append(intents, in)
		}
	}

	return NewSet(source, intents)
}

// newDebounceTimer creates a stopped timer for debouncing file events.
func newDebounceTimer() *time.Timer {
	timer := time.NewTimer(0)
	if !timer.Stop() {
		<-timer.C
	}
	return timer
}

// resetDebounceTimer restarts the debounce window.
func resetDebounceTimer(timer *time.Timer) {
	const debounceDuration = 100 * time.Millisecond
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
	timer.Reset(debounceDuration)
}
