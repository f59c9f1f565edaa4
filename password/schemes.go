package password

import (
	"errors"
	"strings"
)

var (
	// ErrUnknownScheme is returned when a stored hash names a tag that has no registered scheme.
	ErrUnknownScheme = errors.New("unknown password scheme")
	// ErrMalformedHash is returned when a stored hash cannot be parsed by its scheme.
	ErrMalformedHash = errors.New("malformed password hash")
)

const (
	tagOpen  = "{"
	tagClose = "}"
)

// Scheme hashes and verifies passwords in one stored format.
type Scheme interface {
	Hash(password string) (string, error)
	Verify(password, encoded string) (bool, error)
}

// Schemes is the strategy table selected by the stored tag.
//
// It is immutable after construction and safe for concurrent use.
type Schemes struct {
	defaultID string
	byID      map[string]Scheme
	fallback  Scheme
}

// NewSchemes builds a table that encodes new hashes with defaultID and
// verifies untagged hashes with fallback. fallback may be nil, in which case
// untagged hashes never match.
func NewSchemes(defaultID string, schemes map[string]Scheme, fallback Scheme) (*Schemes, error) {
	if defaultID == "" {
		return nil, errors.New("default scheme id is required")
	}
	if _, ok := schemes[defaultID]; !ok {
		return nil, errors.New("default scheme " + defaultID + " is not registered")
	}

	byID := make(map[string]Scheme, len(schemes))
	for id, s := range schemes {
		if id == "" || s == nil {
			return nil, errors.New("scheme ids and implementations must be non-empty")
		}
		byID[id] = s
	}

	return &Schemes{
		defaultID: defaultID,
		byID:      byID,
		fallback:  fallback,
	}, nil
}

// DefaultID returns the tag used for newly encoded hashes.
func (s *Schemes) DefaultID() string {
	return s.defaultID
}

// Hash encodes password with the default scheme and prefixes its tag.
func (s *Schemes) Hash(password string) (string, error) {
	encoded, err := s.byID[s.defaultID].Hash(password)
	if err != nil {
		return "", err
	}
	return tagOpen + s.defaultID + tagClose + encoded, nil
}

// Verify checks password against stored using the scheme selected by the
// stored tag, or the fallback scheme when the hash carries no tag.
func (s *Schemes) Verify(password, stored string) (bool, error) {
	if stored == "" {
		return false, ErrMalformedHash
	}

	id, encoded, tagged := splitTag(stored)
	if !tagged {
		if s.fallback == nil {
			return false, ErrUnknownScheme
		}
		return s.fallback.Verify(password, stored)
	}

	scheme, ok := s.byID[id]
	if !ok {
		return false, ErrUnknownScheme
	}
	return scheme.Verify(password, encoded)
}

// Matches is Verify with every error collapsed into a mismatch.
func (s *Schemes) Matches(password, stored string) bool {
	ok, err := s.Verify(password, stored)
	return err == nil && ok
}

// NeedsUpgrade reports whether stored was produced by a scheme other than the default.
func (s *Schemes) NeedsUpgrade(stored string) bool {
	id, _, tagged := splitTag(stored)
	return !tagged || id != s.defaultID
}

// SchemeID returns the tag of stored, or "" for untagged hashes.
func SchemeID(stored string) string {
	id, _, _ := splitTag(stored)
	return id
}

func splitTag(stored string) (string, string, bool) {
	if !strings.HasPrefix(stored, tagOpen) {
		return "", stored, false
	}
	end := strings.Index(stored, tagClose)
	if end < 0 {
		return "", stored, false
	}
	return stored[len(tagOpen):end], stored[end+len(tagClose):], true
}
