package protocol

import "fmt"

// ConfigError reports an intent source or guard policy that cannot be read or
// is structurally invalid. It is fatal and aborts before any write.
type ConfigError struct {
	Path   string // configuration file
	Reason string // human-readable defect
	Err    error  // underlying I/O or decode error, if any
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("config %s: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("config %s: %s", e.Path, e.Reason)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// AuthReason identifies why a write was rejected.
type AuthReason string

// Authorization rejection reasons.
const (
	ReasonUnknownIntent  AuthReason = "unknown_intent"
	ReasonScopeViolation AuthReason = "scope_violation"
	ReasonInactiveIntent AuthReason = "inactive_intent"
	ReasonProtectedPath  AuthReason = "protected_path"
)

// AuthorizationError reports a denied write: the intent id is unknown, the
// intent is not active, or no owned scope pattern covers the path. Nothing is
// written when it is returned.
type AuthorizationError struct {
	Reason   AuthReason
	IntentID string
	Path     string
	Status   string // intent status, set for ReasonInactiveIntent
}

func (e *AuthorizationError) Error() string {
	switch e.Reason {
	case ReasonUnknownIntent:
		if e.IntentID == "" {
			return "authorization denied: no intent id cited; you must cite a valid active intent id"
		}
		return fmt.Sprintf("authorization denied: unknown intent %q; you must cite a valid active intent id", e.IntentID)
	case ReasonInactiveIntent:
		return fmt.Sprintf("authorization denied: intent %q has status %q, not active", e.IntentID, e.Status)
	case ReasonProtectedPath:
		return fmt.Sprintf("authorization denied: %s is guard state; intent %q cannot edit it", e.Path, e.IntentID)
	default:
		return fmt.Sprintf("scope violation: intent %q cannot edit %s", e.IntentID, e.Path)
	}
}

// PatternError reports a malformed scope pattern. It signals a configuration
// defect and must not be treated as a legitimate denial or retried.
type PatternError struct {
	Pattern  string
	IntentID string // owning intent, when known
	Reason   string
}

func (e *PatternError) Error() string {
	if e.IntentID != "" {
		return fmt.Sprintf("malformed scope pattern %q in intent %q: %s", e.Pattern, e.IntentID, e.Reason)
	}
	return fmt.Sprintf("malformed scope pattern %q: %s", e.Pattern, e.Reason)
}

// IOError reports a backup, write or trace-append failure.
type IOError struct {
	Op   string // "backup", "write", "trace"
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }
