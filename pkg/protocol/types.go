package protocol

// IntentStatus is the lifecycle state of a declared intent.
type IntentStatus string

// Known intent statuses. Other values are accepted and carried through.
const (
	StatusActive    IntentStatus = "active"
	StatusCompleted IntentStatus = "completed"
	StatusBlocked   IntentStatus = "blocked"
)

// Intent is a declared unit of authorized work and the file scopes it may
// modify.
type Intent struct {
	ID                 string       `yaml:"id" json:"id"`
	Name               string       `yaml:"name" json:"name"`
	Status             IntentStatus `yaml:"status" json:"status"`
	OwnedScope         []string     `yaml:"owned_scope" json:"owned_scope"`
	Constraints        []string     `yaml:"constraints,omitempty" json:"constraints,omitempty"`
	AcceptanceCriteria []string     `yaml:"acceptance_criteria,omitempty" json:"acceptance_criteria,omitempty"`
}

// Active reports whether the intent is in the active state.
func (i Intent) Active() bool {
	return i.Status == StatusActive
}

// Fingerprint is a coarse structural measure of one version of a file.
type Fingerprint struct {
	TotalNodes    int `json:"total_nodes"`
	FunctionCount int `json:"function_count"`
}

// MutationClass is the advisory label attached to a traced write.
type MutationClass string

// Mutation classes.
const (
	ASTRefactor     MutationClass = "AST_REFACTOR"
	IntentEvolution MutationClass = "INTENT_EVOLUTION"
)

// Contributor identifies who produced a change.
type Contributor struct {
	EntityType      string `json:"entity_type"`
	ModelIdentifier string `json:"model_identifier"`
}

// LineRange is an inclusive [start, end] line span, encoded as a two-element
// JSON array.
type LineRange [2]int

// Conversation links a traced file to the session and intent that changed it.
type Conversation struct {
	SessionURL      string        `json:"session_url"`
	Contributor     Contributor   `json:"contributor"`
	LineRange       LineRange     `json:"line_range"`
	RelatedIntentID string        `json:"related_intent_id"`
	MutationClass   MutationClass `json:"mutation_class"`
}

// FileTrace describes the written file.
type FileTrace struct {
	RelativePath string       `json:"relative_path"`
	ContentHash  string       `json:"content_hash"`
	Conversation Conversation `json:"conversation"`
}

// TraceRecord is one immutable line of the provenance log.
type TraceRecord struct {
	ID          string    `json:"id"`
	Timestamp   string    `json:"timestamp"`
	VCSRevision string    `json:"vcs_revision"`
	File        FileTrace `json:"file"`
}
