package guard_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"intentguard/pkg/classify"
	"intentguard/pkg/config"
	"intentguard/pkg/eventlog"
	"intentguard/pkg/guard"
	"intentguard/pkg/intent"
	"intentguard/pkg/protocol"
	"intentguard/pkg/structure"
	"intentguard/pkg/trace"
)

const fixtureIntents = `active_intents:
  - id: intent-1
    name: Build auth
    status: active
    owned_scope:
      - src/**/*.ts
      - src/auth/**
  - id: intent-go
    name: Go service
    status: active
    owned_scope:
      - svc/**/*.go
  - id: intent-done
    name: Finished docs
    status: completed
    owned_scope:
      - docs/**
  - id: intent-empty
    name: Owns nothing
    status: active
    owned_scope: []
  - id: intent-broken
    name: Bad pattern
    status: active
    owned_scope:
      - src/**x/*.ts
  - id: intent-all
    name: Owns everything
    status: active
    owned_scope:
      - "**"
`

type fixture struct {
	root      string
	tracePath string
	guard     *guard.Guard
}

type fixtureOpt func(*guard.Config)

func newFixture(t *testing.T, opts ...fixtureOpt) *fixture {
	t.Helper()
	return newFixtureWithTracer(t, nil, opts...)
}

// newFixtureWithTracer builds a guard over a temp project. A nil tracer uses
// a real recorder on <root>/.orchestration/agent_trace.jsonl.
func newFixtureWithTracer(t *testing.T, tracer guard.Tracer, opts ...fixtureOpt) *fixture {
	t.Helper()
	root := t.TempDir()
	orch := filepath.Join(root, protocol.OrchestrationDir)
	if err := os.MkdirAll(orch, 0o755); err != nil {
		t.Fatal(err)
	}
	intentsPath := filepath.Join(orch, protocol.IntentsFile)
	if err := os.WriteFile(intentsPath, []byte(fixtureIntents), 0o644); err != nil {
		t.Fatal(err)
	}

	tracePath := trace.DefaultPath(root)
	if tracer == nil {
		tracer = trace.NewRecorder(tracePath,
			trace.WithRoot(root),
			trace.WithRevision(func(context.Context, string) string { return protocol.UnknownRevision }),
		)
	}

	cfg := guard.ConfigFromPolicy(root, config.Default())
	for _, opt := range opts {
		opt(&cfg)
	}
	classifier := classify.NewClassifier(classify.DefaultPolicy(), structure.NewExtractor(), nil)
	g := guard.New(cfg, intent.NewStore(intentsPath), classifier, tracer)
	return &fixture{root: root, tracePath: tracePath, guard: g}
}

func (f *fixture) write(t *testing.T, rel, content string) {
	t.Helper()
	path := filepath.Join(f.root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func (f *fixture) read(t *testing.T, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(f.root, filepath.FromSlash(rel)))
	if err != nil {
		t.Fatalf("read %s: %v", rel, err)
	}
	return string(data)
}

func (f *fixture) traceRecords(t *testing.T) []protocol.TraceRecord {
	t.Helper()
	l, err := trace.ReadAll(f.tracePath)
	if err != nil {
		t.Fatal(err)
	}
	if l.Malformed != 0 {
		t.Errorf("trace log has %d malformed lines", l.Malformed)
	}
	return l.Records
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestWrite_AuthorizedPathIsTraced(t *testing.T) {
	f := newFixture(t)
	content := "export function login() {}\n"

	res, err := f.guard.Write(context.Background(), guard.Request{
		IntentID: "intent-1", Path: "src/auth/login.ts", Content: []byte(content),
	})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if res.State != guard.StateTraced {
		t.Errorf("State = %s, want TRACED", res.State)
	}
	if res.MatchedPattern != "src/**/*.ts" {
		t.Errorf("MatchedPattern = %q", res.MatchedPattern)
	}
	if got := f.read(t, "src/auth/login.ts"); got != content {
		t.Errorf("file = %q", got)
	}

	recs := f.traceRecords(t)
	if len(recs) != 1 {
		t.Fatalf("got %d trace records, want 1", len(recs))
	}
	fileTrace := recs[0].File
	if fileTrace.RelativePath != "src/auth/login.ts" {
		t.Errorf("relative_path = %q", fileTrace.RelativePath)
	}
	if fileTrace.ContentHash != trace.HashContent([]byte(content)) {
		t.Errorf("content_hash = %q", fileTrace.ContentHash)
	}
	if fileTrace.Conversation.RelatedIntentID != "intent-1" {
		t.Errorf("related_intent_id = %q", fileTrace.Conversation.RelatedIntentID)
	}
	// A new file is its own "before", so the change is structural.
	if fileTrace.Conversation.MutationClass != protocol.ASTRefactor || res.Decision.Class != protocol.ASTRefactor {
		t.Errorf("mutation_class = %q, decision = %q", fileTrace.Conversation.MutationClass, res.Decision.Class)
	}
	if res.Record == nil || res.Record.ID != recs[0].ID {
		t.Errorf("Result.Record = %+v, want the appended record", res.Record)
	}
}

func TestWrite_ScopeViolationNamesIntentAndPath(t *testing.T) {
	f := newFixture(t)
	// src/other/file.ts would match src/**/*.ts, so a non-.ts sibling is used.

	res, err := f.guard.Write(context.Background(), guard.Request{
		IntentID: "intent-1", Path: "src/other/file.go", Content: []byte("package other\n"),
	})
	var authErr *protocol.AuthorizationError
	if !errors.As(err, &authErr) {
		t.Fatalf("err = %v, want AuthorizationError", err)
	}
	if authErr.Reason != protocol.ReasonScopeViolation {
		t.Errorf("Reason = %s", authErr.Reason)
	}
	if !strings.Contains(err.Error(), "intent-1") || !strings.Contains(err.Error(), "src/other/file.go") {
		t.Errorf("message %q must name the intent and the path", err)
	}
	if res.State != guard.StateRejected {
		t.Errorf("State = %s, want REJECTED", res.State)
	}
	if exists(filepath.Join(f.root, "src/other/file.go")) {
		t.Error("rejected write reached disk")
	}
	if recs := f.traceRecords(t); len(recs) != 0 {
		t.Errorf("rejected write produced %d trace records", len(recs))
	}
}

func TestAuthorize_Rejections(t *testing.T) {
	f := newFixture(t)
	outside := filepath.Join(filepath.Dir(f.root), "elsewhere", "x.ts")

	tests := []struct {
		name     string
		intentID string
		path     string
		reason   protocol.AuthReason
	}{
		{"unknown intent", "invalid-intent", "src/auth/a.ts", protocol.ReasonUnknownIntent},
		{"no intent cited", "", "src/auth/a.ts", protocol.ReasonUnknownIntent},
		{"empty scope", "intent-empty", "src/auth/a.ts", protocol.ReasonScopeViolation},
		{"outside scope", "intent-go", "svc/readme.md", protocol.ReasonScopeViolation},
		{"dot-dot escape", "intent-1", "src/../../etc/passwd.ts", protocol.ReasonScopeViolation},
		{"absolute outside root", "intent-1", outside, protocol.ReasonScopeViolation},
		{"root itself", "intent-1", ".", protocol.ReasonScopeViolation},
		{"empty path", "intent-1", "", protocol.ReasonScopeViolation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auth, err := f.guard.Authorize(context.Background(), tt.intentID, tt.path)
			var authErr *protocol.AuthorizationError
			if !errors.As(err, &authErr) {
				t.Fatalf("err = %v, want AuthorizationError", err)
			}
			if authErr.Reason != tt.reason {
				t.Errorf("Reason = %s, want %s", authErr.Reason, tt.reason)
			}
			if auth != nil {
				t.Errorf("auth = %+v, want nil", auth)
			}
			if tt.intentID != "" && !strings.Contains(err.Error(), tt.intentID) {
				t.Errorf("message %q must name intent %q", err, tt.intentID)
			}
		})
	}
}

func TestWrite_GuardStateIsProtected(t *testing.T) {
	f := newFixture(t, func(c *guard.Config) {
		c.Protected = append(c.Protected, filepath.Join(c.Root, "logs", "trace.jsonl"))
	})
	ctx := context.Background()
	for i := range 3 {
		if _, err := f.guard.Write(ctx, guard.Request{IntentID: "intent-all", Path: "notes/a.txt", Content: []byte(strings.Repeat("x\n", i+1))}); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}
	intentsBefore := f.read(t, ".orchestration/active_intents.yaml")

	for _, rel := range []string{
		".orchestration/agent_trace.jsonl",
		".orchestration/active_intents.yaml",
		".orchestration/guard.toml",
		".orchestration/state.db",
		".orchestration",
		"./.orchestration/new.yaml",
		filepath.Join(f.root, ".orchestration", "agent_trace.jsonl"),
		"logs/trace.jsonl",
		"logs/trace.jsonl.bak",
	} {
		t.Run(rel, func(t *testing.T) {
			res, err := f.guard.Write(ctx, guard.Request{IntentID: "intent-all", Path: rel, Content: []byte("active_intents: []\n")})
			var authErr *protocol.AuthorizationError
			if !errors.As(err, &authErr) {
				t.Fatalf("err = %v, want AuthorizationError", err)
			}
			if authErr.Reason != protocol.ReasonProtectedPath {
				t.Errorf("Reason = %s, want %s", authErr.Reason, protocol.ReasonProtectedPath)
			}
			if res.State != guard.StateRejected {
				t.Errorf("State = %s, want REJECTED", res.State)
			}
		})
	}

	if recs := f.traceRecords(t); len(recs) != 3 {
		t.Errorf("trace records = %d, want 3", len(recs))
	}
	if got := f.read(t, ".orchestration/active_intents.yaml"); got != intentsBefore {
		t.Errorf("intents file rewritten:\n%s", got)
	}
	if _, err := f.guard.Authorize(ctx, "intent-all", "logs/app.log"); err != nil {
		t.Errorf("neighbouring path rejected: %v", err)
	}
}

func TestAuthorize_NormalizesPaths(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		path string
		want string
	}{
		{"src/auth/login.ts", "src/auth/login.ts"},
		{"./src/auth/login.ts", "src/auth/login.ts"},
		{"src/lib/../auth/login.ts", "src/auth/login.ts"},
		{filepath.Join(f.root, "src", "auth", "login.ts"), "src/auth/login.ts"},
	}
	for _, tt := range tests {
		auth, err := f.guard.Authorize(context.Background(), "intent-1", tt.path)
		if err != nil {
			t.Errorf("Authorize(%q): %v", tt.path, err)
			continue
		}
		if auth.RelPath != tt.want {
			t.Errorf("Authorize(%q).RelPath = %q, want %q", tt.path, auth.RelPath, tt.want)
		}
		if auth.AbsPath != filepath.Join(f.root, filepath.FromSlash(tt.want)) {
			t.Errorf("Authorize(%q).AbsPath = %q", tt.path, auth.AbsPath)
		}
	}
}

func TestAuthorize_InactiveIntent(t *testing.T) {
	lenient := newFixture(t)
	if _, err := lenient.guard.Authorize(context.Background(), "intent-done", "docs/guide.md"); err != nil {
		t.Errorf("completed intent without require_active: %v", err)
	}

	strict := newFixture(t, func(c *guard.Config) { c.RequireActive = true })
	_, err := strict.guard.Authorize(context.Background(), "intent-done", "docs/guide.md")
	var authErr *protocol.AuthorizationError
	if !errors.As(err, &authErr) || authErr.Reason != protocol.ReasonInactiveIntent {
		t.Fatalf("err = %v, want inactive_intent", err)
	}
	if authErr.Status != "completed" {
		t.Errorf("Status = %q", authErr.Status)
	}
}

func TestAuthorize_MalformedPatternIsConfigDefect(t *testing.T) {
	f := newFixture(t)

	_, err := f.guard.Authorize(context.Background(), "intent-broken", "src/a/b.ts")
	var pe *protocol.PatternError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v, want PatternError", err)
	}
	if pe.IntentID != "intent-broken" || pe.Pattern != "src/**x/*.ts" {
		t.Errorf("PatternError = %+v", pe)
	}
	var authErr *protocol.AuthorizationError
	if errors.As(err, &authErr) {
		t.Error("malformed pattern must not be reported as a denial")
	}
}

func TestAuthorize_MissingIntentsFileIsConfigError(t *testing.T) {
	root := t.TempDir()
	store := intent.NewStore(intent.DefaultPath(root))
	g := guard.New(guard.Config{Root: root}, store, nil, nil)

	_, err := g.Authorize(context.Background(), "intent-1", "src/a.ts")
	var ce *protocol.ConfigError
	if !errors.As(err, &ce) {
		t.Fatalf("err = %v, want ConfigError", err)
	}
}

func TestWrite_BackupModes(t *testing.T) {
	const rel = "src/auth/session.ts"
	tests := []struct {
		mode       config.BackupMode
		wantBackup bool
	}{
		{config.BackupDelete, false},
		{config.BackupRetain, true},
		{config.BackupOff, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			f := newFixture(t, func(c *guard.Config) { c.Backup = tt.mode })
			f.write(t, rel, "old\n")

			res, err := f.guard.Write(context.Background(), guard.Request{
				IntentID: "intent-1", Path: rel, Content: []byte("new\n"),
			})
			if err != nil {
				t.Fatal(err)
			}
			if !res.Existed || res.State != guard.StateTraced {
				t.Errorf("Existed = %v, State = %s", res.Existed, res.State)
			}
			bak := filepath.Join(f.root, rel) + protocol.BackupSuffix
			if exists(bak) != tt.wantBackup {
				t.Errorf("backup present = %v, want %v", exists(bak), tt.wantBackup)
			}
			if tt.wantBackup {
				if res.BackupPath != bak {
					t.Errorf("BackupPath = %q, want %q", res.BackupPath, bak)
				}
				if got := f.read(t, rel+protocol.BackupSuffix); got != "old\n" {
					t.Errorf("backup content = %q", got)
				}
			} else if res.BackupPath != "" {
				t.Errorf("BackupPath = %q, want empty", res.BackupPath)
			}
			if got := f.read(t, rel); got != "new\n" {
				t.Errorf("file = %q", got)
			}
		})
	}
}

func TestWrite_PreservesFileMode(t *testing.T) {
	f := newFixture(t)
	path := filepath.Join(f.root, "svc/run.go")
	f.write(t, "svc/run.go", "package svc\n")
	if err := os.Chmod(path, 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := f.guard.Write(context.Background(), guard.Request{
		IntentID: "intent-go", Path: "svc/run.go", Content: []byte("package svc\n\nfunc Run() {}\n"),
	}); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("mode = %v, want 0600", info.Mode().Perm())
	}
}

func TestWrite_ClassifiesAgainstPreviousContent(t *testing.T) {
	f := newFixture(t)
	const rel = "svc/calc.go"
	f.write(t, rel, "package svc\n\nfunc Add(a, b int) int { return a + b }\n")

	renamed := "package svc\n\nfunc Sum(x, y int) int { return x + y }\n"
	res, err := f.guard.Write(context.Background(), guard.Request{IntentID: "intent-go", Path: rel, Content: []byte(renamed)})
	if err != nil {
		t.Fatal(err)
	}
	if res.Decision.Class != protocol.ASTRefactor {
		t.Errorf("rename: class = %s, want AST_REFACTOR (%+v)", res.Decision.Class, res.Decision)
	}

	grown := renamed + `
func Sub(x, y int) int { return x - y }

func Mul(x, y int) int { return x * y }

func Div(x, y int) int {
	if y == 0 {
		return 0
	}
	return x / y
}
`
	res, err = f.guard.Write(context.Background(), guard.Request{IntentID: "intent-go", Path: rel, Content: []byte(grown)})
	if err != nil {
		t.Fatal(err)
	}
	if res.Decision.Class != protocol.IntentEvolution {
		t.Errorf("new functions: class = %s, want INTENT_EVOLUTION (%+v)", res.Decision.Class, res.Decision)
	}

	recs := f.traceRecords(t)
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2", len(recs))
	}
	if recs[1].File.Conversation.LineRange != trace.LineRange([]byte(grown)) {
		t.Errorf("line_range = %v", recs[1].File.Conversation.LineRange)
	}
}

type failingTracer struct{ err error }

func (ft failingTracer) Record(context.Context, trace.Entry) (protocol.TraceRecord, error) {
	return protocol.TraceRecord{}, ft.err
}

func TestWrite_TraceFailureKeepsWriteAndBackup(t *testing.T) {
	traceErr := &protocol.IOError{Op: "trace", Path: "agent_trace.jsonl", Err: errors.New("disk full")}
	f := newFixtureWithTracer(t, failingTracer{err: traceErr})
	const rel = "src/auth/token.ts"
	f.write(t, rel, "old\n")

	res, err := f.guard.Write(context.Background(), guard.Request{IntentID: "intent-1", Path: rel, Content: []byte("new\n")})
	if err != nil {
		t.Fatalf("Write returned %v; trace failures must not fail the write", err)
	}
	if res.State != guard.StateWritten {
		t.Errorf("State = %s, want WRITTEN", res.State)
	}
	if !errors.Is(res.TraceErr, traceErr) {
		t.Errorf("TraceErr = %v", res.TraceErr)
	}
	if res.Record != nil {
		t.Errorf("Record = %+v, want nil", res.Record)
	}
	if got := f.read(t, rel); got != "new\n" {
		t.Errorf("file = %q, write must stand", got)
	}
	if got := f.read(t, rel+protocol.BackupSuffix); got != "old\n" {
		t.Errorf("backup = %q, must be retained after a trace failure", got)
	}
}

func TestWrite_BackupFailureLeavesTargetUntouched(t *testing.T) {
	f := newFixture(t)
	// A directory where the target should be cannot be backed up.
	if err := os.MkdirAll(filepath.Join(f.root, "src", "auth", "dir.ts"), 0o755); err != nil {
		t.Fatal(err)
	}

	res, err := f.guard.Write(context.Background(), guard.Request{IntentID: "intent-1", Path: "src/auth/dir.ts", Content: []byte("x")})
	var ioErr *protocol.IOError
	if !errors.As(err, &ioErr) || ioErr.Op != "backup" {
		t.Fatalf("err = %v, want backup IOError", err)
	}
	if res.State != guard.StateWriteFailed {
		t.Errorf("State = %s, want WRITE_FAILED", res.State)
	}
	if recs := f.traceRecords(t); len(recs) != 0 {
		t.Errorf("failed write produced %d trace records", len(recs))
	}
}

func TestWrite_RecordsEvents(t *testing.T) {
	root := t.TempDir()
	orch := filepath.Join(root, protocol.OrchestrationDir)
	if err := os.MkdirAll(orch, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(orch, protocol.IntentsFile), []byte(fixtureIntents), 0o644); err != nil {
		t.Fatal(err)
	}
	events, err := eventlog.Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = events.Close() })

	g := guard.New(
		guard.Config{Root: root, Source: "test"},
		intent.NewStore(intent.DefaultPath(root)),
		classify.NewClassifier(classify.DefaultPolicy(), structure.NewExtractor(), nil),
		trace.NewRecorder(trace.DefaultPath(root), trace.WithRevision(func(context.Context, string) string { return "r1" })),
		guard.WithEvents(events),
	)
	ctx := context.Background()
	if _, err := g.Write(ctx, guard.Request{IntentID: "intent-1", Path: "src/auth/a.ts", Content: []byte("a")}); err != nil {
		t.Fatal(err)
	}
	_, _ = g.Write(ctx, guard.Request{IntentID: "intent-1", Path: "lib/b.ts", Content: []byte("b")})

	got, err := events.Query(ctx, eventlog.QueryOpts{})
	if err != nil {
		t.Fatal(err)
	}
	var types []string
	for i := len(got) - 1; i >= 0; i-- {
		types = append(types, got[i].Type)
	}
	want := []string{protocol.EventAuthorized, protocol.EventWritten, protocol.EventTraced, protocol.EventRejected}
	if strings.Join(types, ",") != strings.Join(want, ",") {
		t.Errorf("event types = %v, want %v", types, want)
	}
	if got[0].Reason != string(protocol.ReasonScopeViolation) || got[0].Source != "test" {
		t.Errorf("rejection event = %+v", got[0])
	}
	if got[1].MutationClass != string(protocol.ASTRefactor) {
		t.Errorf("traced event = %+v", got[1])
	}
}

func TestAuthorize_ScopeProperties(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	name := gen.AlphaString().SuchThat(func(s string) bool { return s != "" })

	properties.Property("any .ts file under src/ is authorized for intent-1", prop.ForAll(
		func(dir, file string) bool {
			_, err := f.guard.Authorize(ctx, "intent-1", "src/"+dir+"/"+file+".ts")
			return err == nil
		},
		name, name,
	))

	properties.Property("nothing outside src/ is authorized for intent-1", prop.ForAll(
		func(dir, file string) bool {
			_, err := f.guard.Authorize(ctx, "intent-1", "lib/"+dir+"/"+file+".ts")
			var authErr *protocol.AuthorizationError
			return errors.As(err, &authErr) && authErr.Reason == protocol.ReasonScopeViolation
		},
		name, name,
	))

	properties.TestingRun(t)
}
