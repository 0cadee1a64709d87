// Package scope decides whether a root-relative file path is covered by an
// intent's ownership pattern.
//
// Patterns are slash-separated and case-sensitive. Two wildcard tokens exist:
//
//	*   matches any run of characters within one segment (never a "/")
//	**  matches zero or more whole segments; it must be a segment on its own
//
// A pattern is anchored at the first path segment and must consume the whole
// path. "src/**" is the prefix shorthand: it matches "src" and everything
// beneath it. A trailing slash ("src/") is read as "src/**".
package scope

import (
	"strings"

	"intentguard/pkg/protocol"
)

type segmentKind int

const (
	segLiteral segmentKind = iota
	segStar                // contains one or more single-segment '*'
	segDoubleStar          // "**"
)

type segment struct {
	kind segmentKind
	text string
}

func (s segment) match(name string) bool {
	switch s.kind {
	case segLiteral:
		return s.text == name
	case segStar:
		return matchStar(s.text, name)
	default:
		return true
	}
}

// Pattern is a compiled scope pattern.
type Pattern struct {
	raw  string
	segs []segment
}

// String returns the pattern as written.
func (p *Pattern) String() string { return p.raw }

// Compile parses pattern. It returns a *protocol.PatternError when the
// pattern is empty, has an empty segment, or mixes "**" with other characters
// inside one segment.
func Compile(pattern string) (*Pattern, error) {
	norm := strings.TrimPrefix(pattern, "./")
	if strings.HasSuffix(norm, "/") && norm != "/" {
		norm += "**"
	}
	if norm == "" {
		return nil, &protocol.PatternError{Pattern: pattern, Reason: "empty pattern"}
	}

	parts := strings.Split(norm, "/")
	segs := make([]segment, 0, len(parts))
	for i, part := range parts {
		switch {
		case part == "":
			if i == 0 {
				return nil, &protocol.PatternError{Pattern: pattern, Reason: "pattern must be relative to the project root"}
			}
			return nil, &protocol.PatternError{Pattern: pattern, Reason: "empty path segment"}
		case part == "**":
			// Consecutive "**" segments are equivalent to one.
			if len(segs) > 0 && segs[len(segs)-1].kind == segDoubleStar {
				continue
			}
			segs = append(segs, segment{kind: segDoubleStar, text: part})
		case strings.Contains(part, "**"):
			return nil, &protocol.PatternError{Pattern: pattern, Reason: "\"**\" must be a whole path segment, found " + part}
		case strings.Contains(part, "*"):
			segs = append(segs, segment{kind: segStar, text: part})
		default:
			segs = append(segs, segment{kind: segLiteral, text: part})
		}
	}

	return &Pattern{raw: pattern, segs: segs}, nil
}

// MustCompile is like Compile but panics on a malformed pattern.
//
//intentguard:testonly
func MustCompile(pattern string) *Pattern {
	p, err := Compile(pattern)
	if err != nil {
		panic(err)
	}
	return p
}

// Match reports whether path is covered by the compiled pattern.
func (p *Pattern) Match(path string) bool {
	return matchSegments(p.segs, splitPath(path))
}

// Match compiles pattern and reports whether it covers path. The only error
// is a *protocol.PatternError for a malformed pattern.
func Match(pattern, path string) (bool, error) {
	p, err := Compile(pattern)
	if err != nil {
		return false, err
	}
	return p.Match(path), nil
}

// MatchAny checks path against patterns in order and returns the first one
// that matches. Every pattern is compiled before any is matched, so a
// malformed pattern is reported even when an earlier one would have matched.
func MatchAny(patterns []string, path string) (string, bool, error) {
	compiled, err := CompileAll(patterns)
	if err != nil {
		return "", false, err
	}
	for _, p := range compiled {
		if p.Match(path) {
			return p.raw, true, nil
		}
	}
	return "", false, nil
}

// CompileAll compiles patterns in order, stopping at the first malformed one.
func CompileAll(patterns []string) ([]*Pattern, error) {
	compiled := make([]*Pattern, 0, len(patterns))
	for _, raw := range patterns {
		p, err := Compile(raw)
		if err != nil {
			return nil, err
		}
		compiled = append(compiled, p)
	}
	return compiled, nil
}

func splitPath(path string) []string {
	path = strings.TrimPrefix(path, "./")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

// matchSegments is glob matching over segment sequences where "**" plays the
// role of "*". Only the most recent "**" needs to be remembered: on mismatch
// it absorbs one more path segment and matching resumes after it.
func matchSegments(pats []segment, names []string) bool {
	pi, ni := 0, 0
	starPi, starNi := -1, 0

	for ni < len(names) {
		if pi < len(pats) && pats[pi].kind == segDoubleStar {
			starPi, starNi = pi, ni
			pi++
			continue
		}
		if pi < len(pats) && pats[pi].match(names[ni]) {
			pi++
			ni++
			continue
		}
		if starPi >= 0 {
			starNi++
			ni = starNi
			pi = starPi + 1
			continue
		}
		return false
	}

	for pi < len(pats) && pats[pi].kind == segDoubleStar {
		pi++
	}
	return pi == len(pats)
}

// matchStar matches name against a single-segment pattern where '*' matches
// any run of characters and everything else is literal.
func matchStar(pattern, name string) bool {
	pi, ni := 0, 0
	starPi, starNi := -1, 0

	for ni < len(name) {
		if pi < len(pattern) && pattern[pi] == '*' {
			starPi, starNi = pi, ni
			pi++
			continue
		}
		if pi < len(pattern) && pattern[pi] == name[ni] {
			pi++
			ni++
			continue
		}
		if starPi >= 0 {
			starNi++
			ni = starNi
			pi = starPi + 1
			continue
		}
		return false
	}

	for pi < len(pattern) && pattern[pi] == '*' {
		pi++
	}
	return pi == len(pattern)
}
