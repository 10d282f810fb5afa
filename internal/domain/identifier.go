package domain

import (
	"strings"

	"github.com/google/uuid"
)

type LookupKind int

const (
	LookupByID LookupKind = iota
	LookupByHandle
)

type Lookup struct {
	Kind   LookupKind
	ID     uuid.UUID
	Handle string
}

// Lookups returns the resolution attempts for a human-entered recipient, in
// the order they must be tried: an id match first when the text is
// id-shaped, then a handle match. An empty result means nothing can match.
func Lookups(text string) []Lookup {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var out []Lookup
	if id, err := uuid.Parse(text); err == nil {
		out = append(out, Lookup{Kind: LookupByID, ID: id})
	}
	if h := NormalizeHandle(text); h != "" {
		out = append(out, Lookup{Kind: LookupByHandle, Handle: h})
	}
	return out
}

// NormalizeHandle trims, strips one leading '@' and lower-cases. Handles are
// stored in this form, so comparisons are case-insensitive.
func NormalizeHandle(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "@")
	return strings.ToLower(strings.TrimSpace(s))
}
