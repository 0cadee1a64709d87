package scope_test

import (
	"errors"
	"testing"

	"intentguard/pkg/protocol"
	"intentguard/pkg/scope"
)

func TestMatch(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		path    string
		want    bool
	}{
		// ** with one and several intermediate segments
		{"one intermediate segment", "src/**/*.ts", "src/auth/login.ts", true},
		{"two intermediate segments", "src/**/*.ts", "src/auth/login/service.ts", true},
		{"final segment must match *.ts", "src/**/*.ts", "src/auth/login/service.js", false},
		{"zero intermediate segments", "lib/**/*.js", "lib/utils.js", true},
		{"** does not create a prefix match", "src/**/*.ts", "lib/auth/login.ts", false},

		// trailing ** prefix shorthand
		{"trailing ** matches nested file", "src/auth/**", "src/auth/login.ts", true},
		{"trailing ** matches deep file", "src/auth/**", "src/auth/a/b/c.ts", true},
		{"trailing ** matches the directory itself", "src/auth/**", "src/auth", true},
		{"trailing ** sibling directory", "src/auth/**", "src/other/file.ts", false},
		{"trailing ** is segment-anchored", "src/auth/**", "src/authz/file.ts", false},
		{"trailing slash is directory shorthand", "src/auth/", "src/auth/login.ts", true},

		// anchoring
		{"bare filename vs prefixed pattern", "src/**", "test.ts", false},
		{"no substring match", "auth/**", "src/auth/login.ts", false},
		{"pattern longer than path", "src/auth/login.ts", "src/auth", false},
		{"path longer than pattern", "src/auth", "src/auth/login.ts", false},

		// literal and single-segment star
		{"exact literal", "README.md", "README.md", true},
		{"case sensitive", "src/Auth/**", "src/auth/login.ts", false},
		{"star within segment", "src/*.ts", "src/index.ts", true},
		{"star does not cross separator", "src/*.ts", "src/auth/index.ts", false},
		{"star prefix and suffix", "src/login*.spec.ts", "src/login.service.spec.ts", true},
		{"star matches empty run", "src/*index.ts", "src/index.ts", true},
		{"multiple stars in a segment", "src/*-*.ts", "src/auth-service.ts", true},
		{"multiple stars need separator char", "src/*-*.ts", "src/auth.ts", false},
		{"lone star segment", "src/*", "src/anything", true},
		{"lone star needs a segment", "src/*", "src", false},

		// ** in other positions
		{"leading **", "**/*.md", "docs/guide/intro.md", true},
		{"leading ** zero segments", "**/*.md", "README.md", true},
		{"bare ** matches anything", "**", "a/b/c", true},
		{"** between literals", "src/**/test/*.ts", "src/a/b/test/x.ts", true},
		{"** between literals needs literal", "src/**/test/*.ts", "src/a/b/tests/x.ts", false},
		{"two ** groups", "a/**/b/**/c", "a/x/b/y/z/c", true},
		{"two ** groups backtrack", "a/**/b/**/c", "a/b/x/b/c", true},
		{"consecutive ** collapse", "src/**/**/*.go", "src/main.go", true},

		// normalization
		{"leading ./ on pattern", "./src/**", "src/a.ts", true},
		{"leading ./ on path", "src/**", "./src/a.ts", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := scope.Match(tt.pattern, tt.path)
			if err != nil {
				t.Fatalf("Match(%q, %q) unexpected error: %v", tt.pattern, tt.path, err)
			}
			if got != tt.want {
				t.Errorf("Match(%q, %q) = %v, want %v", tt.pattern, tt.path, got, tt.want)
			}
		})
	}
}

func TestMatch_MalformedPattern(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
	}{
		{"empty", ""},
		{"absolute", "/src/**"},
		{"root only", "/"},
		{"empty segment", "src//a.ts"},
		{"** glued to suffix", "src/**.ts"},
		{"** glued to prefix", "src/a**"},
		{"triple star", "src/***/a.ts"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := scope.Match(tt.pattern, "src/a.ts")
			if got {
				t.Errorf("Match(%q) = true for malformed pattern", tt.pattern)
			}
			var perr *protocol.PatternError
			if !errors.As(err, &perr) {
				t.Fatalf("expected *protocol.PatternError, got %T (%v)", err, err)
			}
			if perr.Pattern != tt.pattern {
				t.Errorf("PatternError.Pattern = %q, want %q", perr.Pattern, tt.pattern)
			}
		})
	}
}

func TestMatchAny(t *testing.T) {
	patterns := []string{"src/**/*.ts", "src/auth/**"}

	matched, ok, err := scope.MatchAny(patterns, "src/auth/login.ts")
	if err != nil {
		t.Fatalf("MatchAny: %v", err)
	}
	if !ok || matched != "src/**/*.ts" {
		t.Errorf("MatchAny = (%q, %v), want first pattern", matched, ok)
	}

	matched, ok, err = scope.MatchAny(patterns, "src/auth/schema.sql")
	if err != nil {
		t.Fatalf("MatchAny: %v", err)
	}
	if !ok || matched != "src/auth/**" {
		t.Errorf("MatchAny = (%q, %v), want src/auth/**", matched, ok)
	}

	_, ok, err = scope.MatchAny(patterns, "src/other/file.ts")
	if err != nil {
		t.Fatalf("MatchAny: %v", err)
	}
	if !ok {
		// src/**/*.ts covers any .ts under src
		t.Errorf("MatchAny(src/other/file.ts) = false, want true via src/**/*.ts")
	}

	_, ok, err = scope.MatchAny([]string{"src/auth/**"}, "src/other/file.ts")
	if err != nil || ok {
		t.Errorf("MatchAny(src/auth/**, src/other/file.ts) = (%v, %v), want (false, nil)", ok, err)
	}
}

func TestMatchAny_EmptyScopeRejectsEverything(t *testing.T) {
	_, ok, err := scope.MatchAny(nil, "src/a.ts")
	if err != nil || ok {
		t.Errorf("MatchAny(nil) = (%v, %v), want (false, nil)", ok, err)
	}
}

func TestMatchAny_MalformedPatternReportedEvenAfterMatch(t *testing.T) {
	_, ok, err := scope.MatchAny([]string{"src/**", "src/**.ts"}, "src/a.ts")
	if ok {
		t.Error("MatchAny should not report a match when the scope contains a malformed pattern")
	}
	var perr *protocol.PatternError
	if !errors.As(err, &perr) {
		t.Fatalf("expected *protocol.PatternError, got %v", err)
	}
	if perr.Pattern != "src/**.ts" {
		t.Errorf("PatternError.Pattern = %q", perr.Pattern)
	}
}

func TestPatternString(t *testing.T) {
	p := scope.MustCompile("./src/")
	if p.String() != "./src/" {
		t.Errorf("String() = %q, want the pattern as written", p.String())
	}
	if !p.Match("src/x/y.go") {
		t.Error("compiled ./src/ should match src/x/y.go")
	}
}
