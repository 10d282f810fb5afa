package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestLookups(t *testing.T) {
	id := uuid.New()

	tests := []struct {
		name string
		in   string
		want []Lookup
	}{
		{
			name: "bare id tries id then handle",
			in:   id.String(),
			want: []Lookup{
				{Kind: LookupByID, ID: id},
				{Kind: LookupByHandle, Handle: id.String()},
			},
		},
		{
			name: "handle with at sign",
			in:   "@Maria",
			want: []Lookup{{Kind: LookupByHandle, Handle: "maria"}},
		},
		{
			name: "bare handle with whitespace",
			in:   "  juan_dc ",
			want: []Lookup{{Kind: LookupByHandle, Handle: "juan_dc"}},
		},
		{name: "empty", in: "   ", want: nil},
		{name: "only at sign", in: "@", want: nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Lookups(tc.in))
		})
	}
}

func TestNormalizeHandle(t *testing.T) {
	assert.Equal(t, "maria", NormalizeHandle(" @MaRia "))
	assert.Equal(t, "@maria", NormalizeHandle("@@maria"))
	assert.Equal(t, "", NormalizeHandle(""))
}
