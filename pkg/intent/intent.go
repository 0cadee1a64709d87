// Package intent loads the declared set of intents from
// .orchestration/active_intents.yaml and serves id lookups against it.
package intent

import (
	"fmt"
	"sort"

	"intentguard/pkg/protocol"
)

// Set is an immutable, validated collection of intents indexed by id.
type Set struct {
	ordered []protocol.Intent
	byID    map[string]int
}

// NewSet validates intents and builds the id index. source names the
// configuration file for error messages.
func NewSet(source string, intents []protocol.Intent) (*Set, error) {
	s := &Set{
		ordered: make([]protocol.Intent, 0, len(intents)),
		byID:    make(map[string]int, len(intents)),
	}
	for i, in := range intents {
		if in.ID == "" {
			return nil, &protocol.ConfigError{Path: source, Reason: fmt.Sprintf("%s[%d]: missing required field \"id\"", protocol.IntentsKey, i)}
		}
		if in.Name == "" {
			return nil, &protocol.ConfigError{Path: source, Reason: fmt.Sprintf("intent %q: missing required field \"name\"", in.ID)}
		}
		if _, dup := s.byID[in.ID]; dup {
			return nil, &protocol.ConfigError{Path: source, Reason: fmt.Sprintf("duplicate intent id %q", in.ID)}
		}
		s.byID[in.ID] = len(s.ordered)
		s.ordered = append(s.ordered, in)
	}
	return s, nil
}

// Lookup returns the intent with the given id.
func (s *Set) Lookup(id string) (protocol.Intent, bool) {
	idx, ok := s.byID[id]
	if !ok {
		return protocol.Intent{}, false
	}
	return s.ordered[idx], true
}

// All returns the intents in declaration order.
func (s *Set) All() []protocol.Intent {
	out := make([]protocol.Intent, len(s.ordered))
	copy(out, s.ordered)
	return out
}

// Len returns the number of intents.
func (s *Set) Len() int { return len(s.ordered) }

// IDs returns the intent ids sorted lexically.
func (s *Set) IDs() []string {
	ids := make([]string, 0, len(s.byID))
	for id := range s.byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
