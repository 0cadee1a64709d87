package config

import (
	"fmt"
	"os"
	"path/filepath"

	"intentguard/pkg/protocol"
)

// Environment variables read by intentguard.
const (
	EnvRoot       = "INTENTGUARD_ROOT"
	EnvHome       = "INTENTGUARD_HOME"
	EnvDBPath     = "INTENTGUARD_DB_PATH"
	EnvModel      = "INTENTGUARD_MODEL"
	EnvSessionURL = "INTENTGUARD_SESSION_URL"
	EnvIntentID   = "INTENTGUARD_INTENT_ID"
	EnvVerbose    = "INTENTGUARD_VERBOSE"
)

// Paths holds all resolved intentguard file paths.
// Use ResolvePaths() to populate this struct with defaults + env overrides.
type Paths struct {
	Root        string // project root: flag, INTENTGUARD_ROOT, or cwd
	Home        string // state directory: INTENTGUARD_HOME or <root>/.orchestration
	IntentsPath string // <root>/.orchestration/active_intents.yaml
	PolicyPath  string // <root>/.orchestration/guard.toml
	StateDBPath string // $Home/state.db or INTENTGUARD_DB_PATH
}

// ResolvePaths returns all paths for the project at root, respecting env var
// overrides. An empty root falls back to INTENTGUARD_ROOT, then the working
// directory. The returned Root is absolute.
func ResolvePaths(root string) (*Paths, error) {
	if root == "" {
		root = os.Getenv(EnvRoot)
	}
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("get working dir: %w", err)
		}
		root = wd
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root %s: %w", root, err)
	}

	orch := filepath.Join(abs, protocol.OrchestrationDir)
	home := orch
	if v := os.Getenv(EnvHome); v != "" {
		home = v
	}

	return &Paths{
		Root:        abs,
		Home:        home,
		IntentsPath: filepath.Join(orch, protocol.IntentsFile),
		PolicyPath:  filepath.Join(orch, protocol.PolicyFile),
		StateDBPath: resolvePathWithEnv(EnvDBPath, home, protocol.StateDBFile),
	}, nil
}

// TracePath returns the absolute trace log path for policy p.
func (ps *Paths) TracePath(p Policy) string {
	return filepath.Join(ps.Root, filepath.FromSlash(p.Trace.Path))
}

// Protected returns the absolute paths of every file the guard owns for
// policy p, including the SQLite sidecar files of the state database.
func (ps *Paths) Protected(p Policy) []string {
	return []string{
		ps.IntentsPath,
		ps.PolicyPath,
		ps.TracePath(p),
		ps.StateDBPath,
		ps.StateDBPath + "-wal",
		ps.StateDBPath + "-shm",
	}
}

// resolvePathWithEnv returns the path from envKey if set, otherwise joins base + suffix.
func resolvePathWithEnv(envKey, base, suffix string) string {
	if v := os.Getenv(envKey); v != "" {
		return v
	}
	return filepath.Join(base, suffix)
}

// ApplyEnv overlays the contributor and session settings from the
// environment onto p. Environment values win over guard.toml.
func ApplyEnv(p Policy) Policy {
	if v := os.Getenv(EnvModel); v != "" {
		p.Trace.ModelIdentifier = v
	}
	if v := os.Getenv(EnvSessionURL); v != "" {
		p.Trace.SessionURL = v
	}
	return p
}
