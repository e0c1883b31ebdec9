// Package strings holds small slice-of-string helpers.
package strings

import "strings"

// DedupeAndTrim trims each value and drops empties and repeats, keeping the
// first occurrence order. Comma-split config lists come through here.
func DedupeAndTrim(values []string) []string {
	if len(values) == 0 {
		return values
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
