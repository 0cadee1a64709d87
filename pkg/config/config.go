// Package config loads guard policy from .orchestration/guard.toml and
// resolves the project paths intentguard reads and writes.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	"intentguard/pkg/classify"
	"intentguard/pkg/protocol"
)

// BackupMode controls the lifecycle of the <path>.bak side artifact.
type BackupMode string

// Backup modes.
const (
	// BackupDelete writes the backup and removes it once the write is traced.
	BackupDelete BackupMode = "delete"
	// BackupRetain writes the backup and keeps it for audit.
	BackupRetain BackupMode = "retain"
	// BackupOff never writes a backup; prior content is still classified.
	BackupOff BackupMode = "off"
)

// Policy is the decoded guard.toml.
type Policy struct {
	Classifier    classify.Policy     `toml:"classifier"`
	Backup        BackupPolicy        `toml:"backup"`
	Authorization AuthorizationPolicy `toml:"authorization"`
	Trace         TracePolicy         `toml:"trace"`
}

// BackupPolicy configures backups.
type BackupPolicy struct {
	Mode BackupMode `toml:"mode"`
}

// AuthorizationPolicy configures intent checks beyond id and scope.
type AuthorizationPolicy struct {
	// RequireActive rejects intents whose status is not "active".
	RequireActive bool `toml:"require_active"`
}

// TracePolicy configures trace records.
type TracePolicy struct {
	Path            string `toml:"path"` // relative to the project root
	EntityType      string `toml:"entity_type"`
	ModelIdentifier string `toml:"model_identifier"`
	SessionURL      string `toml:"session_url"`
}

// Default returns the policy used when guard.toml is absent.
func Default() Policy {
	return Policy{
		Classifier: classify.DefaultPolicy(),
		Backup:     BackupPolicy{Mode: BackupDelete},
		Trace: TracePolicy{
			Path:       filepath.ToSlash(filepath.Join(protocol.OrchestrationDir, protocol.TraceFile)),
			EntityType: "AI",
		},
	}
}

// DefaultPolicyPath returns the guard.toml location under root.
func DefaultPolicyPath(root string) string {
	return filepath.Join(root, protocol.OrchestrationDir, protocol.PolicyFile)
}

// LoadPolicy reads path over the defaults. A missing file yields Default().
func LoadPolicy(path string) (Policy, error) {
	p := Default()

	data, err := os.ReadFile(path) //nolint:gosec // path constructed from project root
	if errors.Is(err, fs.ErrNotExist) {
		return p, nil
	}
	if err != nil {
		return Policy{}, &protocol.ConfigError{Path: path, Reason: "cannot read guard policy", Err: err}
	}

	if err := toml.Unmarshal(data, &p); err != nil {
		return Policy{}, &protocol.ConfigError{Path: path, Reason: "invalid TOML", Err: err}
	}
	if err := p.Validate(); err != nil {
		return Policy{}, &protocol.ConfigError{Path: path, Reason: err.Error()}
	}
	return p, nil
}

// Validate checks value ranges.
func (p Policy) Validate() error {
	if p.Classifier.Threshold <= 0 || p.Classifier.Threshold > 1 {
		return fmt.Errorf("classifier.refactor_threshold must be in (0, 1], got %v", p.Classifier.Threshold)
	}
	switch p.Backup.Mode {
	case BackupDelete, BackupRetain, BackupOff:
	default:
		return fmt.Errorf("backup.mode must be one of delete, retain, off; got %q", p.Backup.Mode)
	}
	if p.Trace.Path == "" {
		return errors.New("trace.path must not be empty")
	}
	if filepath.IsAbs(p.Trace.Path) {
		return fmt.Errorf("trace.path must be relative to the project root, got %q", p.Trace.Path)
	}
	return nil
}

// Encode renders p as TOML.
func (p Policy) Encode() ([]byte, error) {
	data, err := toml.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode guard policy: %w", err)
	}
	return data, nil
}
