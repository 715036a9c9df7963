package strings

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupeAndTrim(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected []string
	}{
		{
			name:     "nil slice",
			input:    nil,
			expected: nil,
		},
		{
			name:     "empty slice",
			input:    []string{},
			expected: []string{},
		},
		{
			name:     "trims whitespace",
			input:    []string{"  notary  ", "bank  ", "  survey"},
			expected: []string{"notary", "bank", "survey"},
		},
		{
			name:     "removes duplicates preserving order",
			input:    []string{"notary", "bank", "notary", "survey", "bank"},
			expected: []string{"notary", "bank", "survey"},
		},
		{
			name:     "removes empty strings",
			input:    []string{"notary", "", "  ", "bank"},
			expected: []string{"notary", "bank"},
		},
		{
			name:     "preserves case",
			input:    []string{"C1", "c1"},
			expected: []string{"C1", "c1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DedupeAndTrim(tt.input))
		})
	}
}

func TestDedupeBy(t *testing.T) {
	type cond struct {
		ID   string
		Kind string
	}
	norm := func(c cond) (cond, string) {
		c.ID = strings.TrimSpace(c.ID)
		return c, c.ID
	}

	got := DedupeBy([]cond{
		{ID: " c1 ", Kind: "notary_approval"},
		{ID: "c2", Kind: "bank_approval"},
		{ID: "c1", Kind: "custom"},
		{ID: "   ", Kind: "custom"},
	}, norm)

	assert.Equal(t, []cond{
		{ID: "c1", Kind: "notary_approval"},
		{ID: "c2", Kind: "bank_approval"},
	}, got)
}
