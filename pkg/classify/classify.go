// Package classify labels a write as a structural refactor or a behavioral
// change by comparing coarse fingerprints of the old and new content.
//
// The label is advisory. It is a cheap heuristic over node and function
// counts, not an AST diff, and must never be used as a security boundary.
package classify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"intentguard/pkg/protocol"
	"intentguard/pkg/structure"
)

// DefaultThreshold is the relative node-count change below which a write is
// a refactor.
const DefaultThreshold = 0.1

// Policy holds the tunable decision parameters.
type Policy struct {
	// Threshold is the exclusive upper bound on the relative size change
	// for AST_REFACTOR.
	Threshold float64 `toml:"refactor_threshold"`
	// EqualityFallback labels a write AST_REFACTOR when node count and
	// function count are both unchanged, whatever the ratio.
	EqualityFallback bool `toml:"equality_fallback"`
}

// DefaultPolicy returns the stock thresholds.
func DefaultPolicy() Policy {
	return Policy{Threshold: DefaultThreshold, EqualityFallback: true}
}

// Decision is a classification together with the inputs that produced it.
type Decision struct {
	Class  protocol.MutationClass `json:"mutation_class"`
	Before protocol.Fingerprint   `json:"before"`
	After  protocol.Fingerprint   `json:"after"`
	Ratio  float64                `json:"ratio"`
}

// Decide applies policy to a pair of fingerprints.
func (p Policy) Decide(before, after protocol.Fingerprint) Decision {
	maxNodes := max(before.TotalNodes, after.TotalNodes, 1)
	delta := before.TotalNodes - after.TotalNodes
	if delta < 0 {
		delta = -delta
	}
	ratio := float64(delta) / float64(maxNodes)

	d := Decision{Before: before, After: after, Ratio: ratio}
	switch {
	case ratio < p.Threshold:
		d.Class = protocol.ASTRefactor
	case p.EqualityFallback && before.TotalNodes == after.TotalNodes && before.FunctionCount == after.FunctionCount:
		d.Class = protocol.ASTRefactor
	default:
		d.Class = protocol.IntentEvolution
	}
	return d
}

// Extractor fingerprints one version of a file.
type Extractor interface {
	Extract(ctx context.Context, path string, src []byte) (protocol.Fingerprint, error)
}

// Classifier fingerprints before/after text and applies a Policy.
type Classifier struct {
	policy    Policy
	extractor Extractor
	logger    *slog.Logger

	warnUnavailable sync.Once
}

// NewClassifier returns a Classifier. A nil logger discards output.
func NewClassifier(policy Policy, extractor Extractor, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Classifier{policy: policy, extractor: extractor, logger: logger}
}

// Policy returns the active policy.
func (c *Classifier) Policy() Policy { return c.policy }

// Classify fingerprints both versions of path and labels the change. Text
// that cannot be parsed counts as a zero fingerprint; Classify never fails.
func (c *Classifier) Classify(ctx context.Context, path string, before, after []byte) Decision {
	return c.policy.Decide(c.fingerprint(ctx, path, before), c.fingerprint(ctx, path, after))
}

func (c *Classifier) fingerprint(ctx context.Context, path string, src []byte) protocol.Fingerprint {
	fp, err := c.extractor.Extract(ctx, path, src)
	if err != nil {
		if errors.Is(err, structure.ErrParserUnavailable) {
			c.warnUnavailable.Do(func() {
				c.logger.Warn("structural parser unavailable, non-Go writes classify on zero metrics", "err", err)
			})
		}
		c.logger.Debug("fingerprint unavailable, using zero metrics", "path", path, "err", err)
		return protocol.Fingerprint{}
	}
	return fp
}
