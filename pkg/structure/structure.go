// Package structure extracts a coarse structural fingerprint (syntax node
// count and function-like declaration count) from source text. Go is parsed
// in-process with go/parser; other languages go through the ast-grep binary.
package structure

import (
	"context"
	"errors"
	"fmt"
	"time"

	"intentguard/pkg/protocol"
)

var (
	// ErrUnsupportedLanguage is returned for file types with no parser.
	ErrUnsupportedLanguage = errors.New("structure: unsupported language")

	// ErrParserUnavailable is returned when the external parser binary is
	// not installed.
	ErrParserUnavailable = errors.New("structure: parser unavailable")
)

// Parser produces a fingerprint for one version of a file.
type Parser interface {
	Fingerprint(ctx context.Context, lang Language, src []byte) (protocol.Fingerprint, error)
}

// Extractor picks a parser by file extension.
type Extractor struct {
	goParser   Parser
	extParser  Parser
	astTimeout time.Duration
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithExternalParser replaces the parser used for non-Go languages.
func WithExternalParser(p Parser) Option {
	return func(e *Extractor) {
		e.extParser = p
	}
}

// WithAstGrepTimeout bounds each ast-grep invocation.
func WithAstGrepTimeout(d time.Duration) Option {
	return func(e *Extractor) {
		e.astTimeout = d
	}
}

// NewExtractor returns an Extractor using go/parser for Go and ast-grep for
// everything else.
func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{
		goParser:   GoParser{},
		astTimeout: astGrepTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.extParser == nil {
		e.extParser = &AstGrepParser{Timeout: e.astTimeout}
	}
	return e
}

// Extract fingerprints src, choosing the parser from path's extension.
func (e *Extractor) Extract(ctx context.Context, path string, src []byte) (protocol.Fingerprint, error) {
	lang, ok := LangFromPath(path)
	if !ok {
		return protocol.Fingerprint{}, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, path)
	}
	if lang == LangGo {
		return e.goParser.Fingerprint(ctx, lang, src)
	}
	return e.extParser.Fingerprint(ctx, lang, src)
}
