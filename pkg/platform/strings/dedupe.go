// Package strings holds small helpers for parsing list-style query values.
package strings

import (
	"strings"
)

// SplitList splits a comma-separated value into trimmed, lowercased,
// de-duplicated items. Empty items are dropped and first-seen order is kept.
//
//	SplitList(" Pending,verified,,PENDING ")
//	// []string{"pending", "verified"}
func SplitList(raw string) []string {
	return DedupeAndTrimLower(strings.Split(raw, ","))
}

// DedupeAndTrimLower trims and lowercases each element, then drops empties
// and duplicates.
func DedupeAndTrimLower(values []string) []string {
	if len(values) == 0 {
		return values
	}

	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		item := strings.ToLower(strings.TrimSpace(v))
		if item == "" {
			continue
		}
		if _, dup := seen[item]; dup {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	return out
}
