package structure

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"intentguard/pkg/protocol"
)

const astGrepTimeout = 5 * time.Second

// Rule ids emitted in the inline rule set. Every match counts toward
// TotalNodes; matches of ruleFunction also count toward FunctionCount.
const (
	ruleFunction = "fn"
	ruleNode     = "node"
)

type astGrepMatch struct {
	RuleID string `json:"ruleId"`
}

// kindSet lists the tree-sitter node kinds counted for one language.
type kindSet struct {
	functions []string
	nodes     []string
}

var langKinds = map[Language]kindSet{ //nolint:gochecknoglobals // static config
	LangPython: {
		functions: []string{"function_definition", "lambda"},
		nodes: []string{
			"class_definition", "decorated_definition", "import_statement", "import_from_statement",
			"expression_statement", "return_statement", "if_statement", "for_statement",
			"while_statement", "try_statement", "with_statement", "raise_statement",
			"assignment", "call",
		},
	},
	LangTypeScript: {
		functions: tsFunctionKinds,
		nodes:     append([]string{"interface_declaration", "type_alias_declaration", "enum_declaration"}, jsNodeKinds...),
	},
	LangTSX: {
		functions: tsFunctionKinds,
		nodes:     append([]string{"interface_declaration", "type_alias_declaration", "enum_declaration", "jsx_element", "jsx_self_closing_element"}, jsNodeKinds...),
	},
	LangJavaScript: {
		functions: []string{"function_declaration", "generator_function_declaration", "function_expression", "arrow_function", "method_definition"},
		nodes:     append([]string{"jsx_element", "jsx_self_closing_element"}, jsNodeKinds...),
	},
	LangRust: {
		functions: []string{"function_item", "closure_expression"},
		nodes: []string{
			"struct_item", "enum_item", "trait_item", "type_item", "impl_item", "use_declaration",
			"let_declaration", "expression_statement", "return_expression", "if_expression",
			"match_expression", "for_expression", "while_expression", "loop_expression",
			"call_expression", "macro_invocation",
		},
	},
	LangJava: {
		functions: []string{"method_declaration", "constructor_declaration", "lambda_expression"},
		nodes: []string{
			"class_declaration", "interface_declaration", "enum_declaration", "field_declaration",
			"import_declaration", "local_variable_declaration", "expression_statement",
			"return_statement", "if_statement", "for_statement", "enhanced_for_statement",
			"while_statement", "try_statement", "throw_statement", "method_invocation",
		},
	},
}

var tsFunctionKinds = []string{ //nolint:gochecknoglobals // static config
	"function_declaration", "generator_function_declaration", "function_expression",
	"arrow_function", "method_definition", "method_signature",
}

var jsNodeKinds = []string{ //nolint:gochecknoglobals // static config
	"class_declaration", "import_statement", "export_statement", "lexical_declaration",
	"variable_declaration", "expression_statement", "return_statement", "if_statement",
	"for_statement", "for_in_statement", "while_statement", "try_statement",
	"throw_statement", "switch_statement", "call_expression", "new_expression",
}

// AstGrepParser fingerprints non-Go source by running
// `ast-grep scan --json --inline-rules` over a temporary copy of the text.
type AstGrepParser struct {
	// Bin is the ast-grep executable; empty means look it up in PATH.
	Bin string
	// Timeout bounds one invocation; zero means astGrepTimeout.
	Timeout time.Duration
}

// Fingerprint implements Parser.
func (p *AstGrepParser) Fingerprint(ctx context.Context, lang Language, src []byte) (protocol.Fingerprint, error) {
	rules, err := inlineRules(lang)
	if err != nil {
		return protocol.Fingerprint{}, err
	}

	bin := p.Bin
	if bin == "" {
		bin, err = exec.LookPath("ast-grep")
		if err != nil {
			return protocol.Fingerprint{}, fmt.Errorf("%w: ast-grep not found in PATH: %v", ErrParserUnavailable, err)
		}
	}

	tmp, err := os.CreateTemp("", "intentguard-*"+lang.extension())
	if err != nil {
		return protocol.Fingerprint{}, fmt.Errorf("structure: create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(src); err != nil {
		_ = tmp.Close()
		return protocol.Fingerprint{}, fmt.Errorf("structure: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return protocol.Fingerprint{}, fmt.Errorf("structure: close temp file: %w", err)
	}

	timeout := p.Timeout
	if timeout <= 0 {
		timeout = astGrepTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, bin, "scan", "--json", "--inline-rules", rules, tmp.Name()) //nolint:gosec // bin resolved from PATH or config
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return protocol.Fingerprint{}, fmt.Errorf("structure: ast-grep failed: %w: %s", err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return protocol.Fingerprint{}, fmt.Errorf("structure: ast-grep failed: %w", err)
	}

	return countMatches(out)
}

// countMatches turns ast-grep's JSON match list into a fingerprint.
func countMatches(out []byte) (protocol.Fingerprint, error) {
	var matches []astGrepMatch
	if err := json.Unmarshal(out, &matches); err != nil {
		return protocol.Fingerprint{}, fmt.Errorf("structure: failed to parse ast-grep output: %w", err)
	}
	var fp protocol.Fingerprint
	for _, m := range matches {
		fp.TotalNodes++
		if m.RuleID == ruleFunction {
			fp.FunctionCount++
		}
	}
	return fp, nil
}

// inlineRules renders the two-rule YAML document passed to ast-grep.
func inlineRules(lang Language) (string, error) {
	kinds, ok := langKinds[lang]
	if !ok {
		return "", fmt.Errorf("%w: no ast-grep rules for %s", ErrUnsupportedLanguage, lang)
	}
	var b strings.Builder
	writeRule(&b, ruleFunction, lang, kinds.functions)
	b.WriteString("---\n")
	writeRule(&b, ruleNode, lang, kinds.nodes)
	return b.String(), nil
}

func writeRule(b *strings.Builder, id string, lang Language, kinds []string) {
	fmt.Fprintf(b, "id: %s\nlanguage: %s\nseverity: info\nrule:\n  any:\n", id, lang)
	for _, k := range kinds {
		fmt.Fprintf(b, "    - kind: %s\n", k)
	}
}
