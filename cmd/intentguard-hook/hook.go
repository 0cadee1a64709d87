package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"intentguard/internal/app"
	"intentguard/pkg/config"
	"intentguard/pkg/eventlog"
	"intentguard/pkg/protocol"
)

// Hook events.
const (
	eventPre  = "PreToolUse"
	eventPost = "PostToolUse"
)

// denyPrefix starts every denial reason.
const denyPrefix = "Blocked by PreHook: "

// stagedTTL bounds how long pre-write content waits for its PostToolUse.
const stagedTTL = 24 * time.Hour

// hookInput represents the JSON payload sent by the agent on stdin.
type hookInput struct {
	HookEventName string          `json:"hook_event_name"`
	HookType      string          `json:"hook_type"`
	SessionID     string          `json:"session_id"`
	Cwd           string          `json:"cwd"`
	ToolName      string          `json:"tool_name"`
	ToolUseID     string          `json:"tool_use_id"`
	ToolInput     json.RawMessage `json:"tool_input"`
}

func (h hookInput) event() string {
	switch {
	case h.HookEventName != "":
		return h.HookEventName
	case h.HookType != "":
		return h.HookType
	default:
		return eventPre
	}
}

// toolInput holds the fields read from any write tool's tool_input.
type toolInput struct {
	FilePath string `json:"file_path"`
	Path     string `json:"path"` // write_to_file
	IntentID string `json:"intent_id"`
}

func (t toolInput) target() string {
	if t.FilePath != "" {
		return t.FilePath
	}
	return t.Path
}

// denyResponse is the JSON shape for blocking a tool call.
type denyResponse struct {
	PermissionDecision       string `json:"permissionDecision"`
	PermissionDecisionReason string `json:"permissionDecisionReason"`
}

// allowJSON is the pre-encoded allow response (empty JSON object).
var allowJSON = []byte("{}") //nolint:gochecknoglobals // constant response

func denyJSON(reason string) []byte {
	out, err := json.Marshal(denyResponse{
		PermissionDecision:       "deny",
		PermissionDecisionReason: denyPrefix + reason,
	})
	if err != nil {
		return []byte(`{"permissionDecision":"deny","permissionDecisionReason":"Blocked by PreHook"}`)
	}
	return out
}

// Opener wires the guard for a project root.
type Opener func(ctx context.Context, root string) (*app.App, error)

// Handler processes hook payloads.
type Handler struct {
	open    Opener
	schemas map[string]*jsonschema.Schema
	logger  *slog.Logger
	now     func() time.Time
}

// NewHandler compiles the tool input schemas and returns a Handler.
func NewHandler(open Opener, logger *slog.Logger) (*Handler, error) {
	schemas, err := compileToolSchemas()
	if err != nil {
		return nil, err
	}
	return &Handler{open: open, schemas: schemas, logger: logger, now: time.Now}, nil
}

// Handle processes one hook event and returns the JSON response.
//
// PreToolUse is fail-closed: a malformed payload, a broken configuration or
// a staging failure denies the write just like a rejected authorization.
// PostToolUse is fail-open: the write already happened, so every failure is
// logged and the response is always allow.
func (h *Handler) Handle(ctx context.Context, input []byte) []byte {
	var hook hookInput
	if err := json.Unmarshal(input, &hook); err != nil {
		return denyJSON("malformed hook payload: " + err.Error())
	}

	schema, ok := h.schemas[hook.ToolName]
	if !ok {
		return allowJSON
	}

	switch hook.event() {
	case eventPre:
		if err := h.pre(ctx, hook, schema); err != nil {
			return denyJSON(err.Error())
		}
	case eventPost:
		if err := h.post(ctx, hook); err != nil {
			h.logger.Error("post-write trace failed", "tool", hook.ToolName, "tool_use_id", hook.ToolUseID, "err", err)
		}
	}
	return allowJSON
}

func (h *Handler) pre(ctx context.Context, hook hookInput, schema *jsonschema.Schema) error {
	var raw any
	if err := json.Unmarshal(hook.ToolInput, &raw); err != nil {
		return fmt.Errorf("invalid %s input: %w", hook.ToolName, err)
	}
	if err := schema.Validate(raw); err != nil {
		return fmt.Errorf("invalid %s input: %w", hook.ToolName, err)
	}
	var ti toolInput
	if err := json.Unmarshal(hook.ToolInput, &ti); err != nil {
		return fmt.Errorf("invalid %s input: %w", hook.ToolName, err)
	}

	a, err := h.open(ctx, projectRoot(hook))
	if err != nil {
		return err
	}
	defer a.Close()

	auth, err := a.Guard.Authorize(ctx, intentID(ti), ti.target())
	if err != nil {
		return err
	}

	content, err := os.ReadFile(auth.AbsPath) //nolint:gosec // path confined to project root
	existed := err == nil
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &protocol.IOError{Op: "backup", Path: auth.RelPath, Err: err}
	}

	if err := a.Events.Stage(ctx, eventlog.Pending{
		Key:      stageKey(hook, ti),
		IntentID: auth.Intent.ID,
		Path:     auth.RelPath,
		Existed:  existed,
		Content:  content,
	}); err != nil {
		return err
	}

	if n, err := a.Events.PruneStaged(ctx, h.now().Add(-stagedTTL)); err != nil {
		h.logger.Warn("prune staged writes failed", "err", err)
	} else if n > 0 {
		h.logger.Debug("pruned stale staged writes", "count", n)
	}
	return nil
}

func (h *Handler) post(ctx context.Context, hook hookInput) error {
	var ti toolInput
	if err := json.Unmarshal(hook.ToolInput, &ti); err != nil {
		return fmt.Errorf("decode %s input: %w", hook.ToolName, err)
	}

	a, err := h.open(ctx, projectRoot(hook))
	if err != nil {
		return err
	}
	defer a.Close()

	staged, ok, err := a.Events.Pop(ctx, stageKey(hook, ti))
	if err != nil {
		return err
	}
	if !ok {
		// No PreToolUse record: re-derive the path and trace the write as
		// a new file.
		h.logger.Warn("no staged content for write, tracing without before", "tool_use_id", hook.ToolUseID)
		auth, err := a.Guard.Authorize(ctx, intentID(ti), ti.target())
		if err != nil {
			return err
		}
		staged = eventlog.Pending{IntentID: auth.Intent.ID, Path: auth.RelPath}
	}

	after, err := os.ReadFile(filepath.Join(a.Paths.Root, filepath.FromSlash(staged.Path)))
	if err != nil {
		return &protocol.IOError{Op: "trace", Path: staged.Path, Err: err}
	}
	before := after
	if staged.Existed {
		before = staged.Content
	}

	_, _, err = a.Guard.Trace(ctx, staged.IntentID, staged.Path, before, after)
	return err
}

// projectRoot prefers INTENTGUARD_ROOT, then the payload's cwd. An empty
// result lets config.ResolvePaths fall back to the working directory.
func projectRoot(hook hookInput) string {
	if v := os.Getenv(config.EnvRoot); v != "" {
		return v
	}
	return hook.Cwd
}

func intentID(ti toolInput) string {
	if ti.IntentID != "" {
		return ti.IntentID
	}
	return os.Getenv(config.EnvIntentID)
}

// stageKey pairs a PreToolUse with its PostToolUse.
func stageKey(hook hookInput, ti toolInput) string {
	if hook.ToolUseID != "" {
		return hook.ToolUseID
	}
	return hook.SessionID + ":" + ti.target()
}
