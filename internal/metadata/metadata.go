// Package metadata models the small, enumerated set of fields the
// correlation layer inspects for an explicit option marker, replacing the
// source's reflective recursive search of arbitrary nested objects with a
// flat, typed mapping populated at each transport ingress point.
package metadata

import "strings"

// knownOptionKeys are the case-folded key spellings that carry an explicit
// option marker, per the correlation layer's fallback ladder.
var knownOptionKeys = []string{"option", "selectedoption", "choice"}

// Bag is a flat string-to-string mapping extracted from a small, known set
// of transport payload locations (top-level metadata, per-call metadata,
// message extras).
type Bag map[string]string

// New returns an empty Bag.
func New() Bag {
	return Bag{}
}

// Merge folds src into b, keeping b's existing values on key collision so
// the first-populated source wins.
func (b Bag) Merge(src map[string]string) Bag {
	for k, v := range src {
		key := strings.ToLower(k)
		if _, exists := b[key]; !exists {
			b[key] = v
		}
	}
	return b
}

// Option returns the explicit option marker, if any of the known key
// spellings is present, case-folded.
func (b Bag) Option() (string, bool) {
	for _, key := range knownOptionKeys {
		if v, ok := b[key]; ok && v != "" {
			return v, true
		}
	}
	return "", false
}
