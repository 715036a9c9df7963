// Package strings provides string manipulation utilities.
package strings

import (
	"strings"
)

// DedupeAndTrim removes duplicates and empty strings from a slice,
// trimming whitespace from each element. Order is preserved.
//
// Example:
//
//	DedupeAndTrim([]string{"  notary ", "bank", "notary", "", "  "})
//	// Returns: []string{"notary", "bank"}
func DedupeAndTrim(values []string) []string {
	return DedupeBy(values, func(v string) (string, string) {
		t := strings.TrimSpace(v)
		return t, t
	})
}

// DedupeBy normalizes each element with norm and keeps the first element per
// non-empty key. norm returns the normalized element and its key. Order is
// preserved.
//
// Example:
//
//	DedupeBy(conditions, func(c Condition) (Condition, string) {
//		c.ID = strings.TrimSpace(c.ID)
//		return c, c.ID
//	})
func DedupeBy[T any](values []T, norm func(T) (T, string)) []T {
	if len(values) == 0 {
		return values
	}

	seen := make(map[string]struct{}, len(values))
	result := make([]T, 0, len(values))

	for _, v := range values {
		n, key := norm(v)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; !ok {
			seen[key] = struct{}{}
			result = append(result, n)
		}
	}

	return result
}
