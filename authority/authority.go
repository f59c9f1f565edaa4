package authority

import (
	"sort"
	"strings"
)

// Prefix is the structural prefix of a granted role authority.
const Prefix = "ROLE_"

// Normalize trims and upper-cases code and strips the role prefix, yielding
// the stored form of a role code.
func Normalize(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	return strings.TrimPrefix(code, Prefix)
}

// Canonical returns the prefixed authority for code.
func Canonical(code string) string {
	n := Normalize(code)
	if n == "" {
		return ""
	}
	return Prefix + n
}

// NormalizeGroup trims and upper-cases a group code.
func NormalizeGroup(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Set is an immutable set of canonical authorities.
type Set struct {
	m map[string]struct{}
}

// NewSet canonicalizes every entry of auths. Blank entries are dropped.
func NewSet(auths ...string) Set {
	m := make(map[string]struct{}, len(auths))
	for _, a := range auths {
		if c := Canonical(a); c != "" {
			m[c] = struct{}{}
		}
	}
	return Set{m: m}
}

// Has reports whether code, in any accepted spelling, is in the set.
func (s Set) Has(code string) bool {
	if s.m == nil {
		return false
	}
	_, ok := s.m[Canonical(code)]
	return ok
}

// HasAny reports whether at least one of codes is in the set.
func (s Set) HasAny(codes ...string) bool {
	for _, c := range codes {
		if s.Has(c) {
			return true
		}
	}
	return false
}

// Len returns the number of distinct authorities.
func (s Set) Len() int {
	return len(s.m)
}

// Sorted returns the canonical authorities in lexical order.
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s.m))
	for a := range s.m {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// Codes returns the stored (unprefixed) form of every authority, sorted.
func (s Set) Codes() []string {
	out := s.Sorted()
	for i, a := range out {
		out[i] = strings.TrimPrefix(a, Prefix)
	}
	return out
}

// Intersects reports whether the two code lists share at least one entry
// after group normalization.
func Intersects(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	seen := make(map[string]struct{}, len(a))
	for _, g := range a {
		seen[NormalizeGroup(g)] = struct{}{}
	}
	for _, g := range b {
		if _, ok := seen[NormalizeGroup(g)]; ok {
			return true
		}
	}
	return false
}

// Contains reports whether codes holds code after normalize is applied to both.
func Contains(codes []string, code string, normalize func(string) string) bool {
	want := normalize(code)
	for _, c := range codes {
		if normalize(c) == want {
			return true
		}
	}
	return false
}
