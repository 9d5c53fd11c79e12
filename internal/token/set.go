package token

// Set is an in-memory view of issued tokens. It only saves retries;
// the storage uniqueness constraint is what guarantees uniqueness.
// Not safe for concurrent use.
type Set struct {
	m map[string]struct{}
}

// NewSet returns a Set containing toks.
func NewSet(toks ...string) *Set {
	s := &Set{m: make(map[string]struct{}, len(toks))}
	for _, t := range toks {
		s.Add(t)
	}
	return s
}

// Contains implements Lookup.
func (s *Set) Contains(tok string) bool {
	if s == nil {
		return false
	}
	_, ok := s.m[tok]
	return ok
}

// Add records tok. Empty strings are ignored. The zero Set is ready to use.
func (s *Set) Add(tok string) {
	if tok == "" {
		return
	}
	if s.m == nil {
		s.m = make(map[string]struct{})
	}
	s.m[tok] = struct{}{}
}

// Len returns the number of tokens in the set.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.m)
}
