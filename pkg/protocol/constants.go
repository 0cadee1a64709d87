package protocol

// Directory and file names used throughout intentguard. All paths are
// relative to the project root.
const (
	// OrchestrationDir holds intent configuration, guard policy and the
	// trace log.
	OrchestrationDir = ".orchestration"

	// IntentsFile is the YAML file declaring the active intents.
	IntentsFile = "active_intents.yaml"

	// IntentsKey is the top-level key of IntentsFile holding the intent list.
	IntentsKey = "active_intents"

	// PolicyFile is the TOML file carrying classifier, backup and trace policy.
	PolicyFile = "guard.toml"

	// TraceFile is the append-only JSON Lines provenance log.
	TraceFile = "agent_trace.jsonl"

	// StateDBFile is the SQLite database holding guard events and staged
	// pre-write content for the hook binary.
	StateDBFile = "state.db"

	// BackupSuffix is appended to a file path to name its pre-write copy.
	BackupSuffix = ".bak"

	// HashPrefix prefixes every content hash recorded in a trace.
	HashPrefix = "sha256:"

	// UnknownRevision is recorded when the VCS revision cannot be read.
	UnknownRevision = "unknown"
)
