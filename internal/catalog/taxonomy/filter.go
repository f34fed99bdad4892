package taxonomy

import (
	"sort"
	"strings"

	"golang.org/x/text/collate"
)

// LooksLikeInternalID reports whether a tag is an identifier that leaked
// into the tag list rather than a human label:
//
//   - it contains "_" and the text before the first "_" is a number
//     ("1770363107410_0.0907"), or
//   - it is all digits and longer than 8 characters ("1770363107410").
//
// "abc_123" is not an internal id: its prefix is not numeric.
func LooksLikeInternalID(tok string) bool {
	if i := strings.IndexByte(tok, '_'); i >= 0 {
		return isNumber(tok[:i])
	}
	return len(tok) > 8 && isDigits(tok)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// isNumber accepts an optionally signed decimal with at most one point.
func isNumber(s string) bool {
	s = strings.TrimPrefix(s, "-")
	whole, frac, hasPoint := strings.Cut(s, ".")
	if !hasPoint {
		return isDigits(whole)
	}
	switch {
	case whole == "" && frac == "":
		return false
	case whole == "":
		return isDigits(frac)
	case frac == "":
		return isDigits(whole)
	}
	return isDigits(whole) && isDigits(frac)
}

func sortEntries(entries []Entry, c *collate.Collator) {
	sort.SliceStable(entries, func(i, j int) bool {
		if cmp := c.CompareString(entries[i].Name, entries[j].Name); cmp != 0 {
			return cmp < 0
		}
		return entries[i].ID < entries[j].ID
	})
}
