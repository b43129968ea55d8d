package resolver

import "strings"

// Selector picks the canonical member of a duplicate group.
// It receives member paths in first-seen order and returns an index into
// them; an out-of-range index is treated as 0.
type Selector func(paths []string) int

// FirstSeen keeps the earliest discovered file.
func FirstSeen(_ []string) int { return 0 }

// PreferSubstring keeps the first path containing any of subs, trying subs
// in order. Falls back to the first seen file.
func PreferSubstring(subs ...string) Selector {
	return func(paths []string) int {
		for _, sub := range subs {
			if sub == "" {
				continue
			}
			for i, p := range paths {
				if strings.Contains(p, sub) {
					return i
				}
			}
		}
		return 0
	}
}
