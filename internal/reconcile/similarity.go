package reconcile

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"
	"golang.org/x/text/unicode/norm"
)

// Normalize folds s to NFKC and lowercases it so that visually identical
// lane strings compare equal
func Normalize(s string) string {
	return strings.ToLower(norm.NFKC.String(strings.TrimSpace(s)))
}

// LaneKey returns the normalised "origin->destination" lane string
func LaneKey(origin, destination string) string {
	return Normalize(origin) + "->" + Normalize(destination)
}

// Similarity returns the Ratcliff/Obershelp ratio of a and b in [0,1],
// computed over runes. The matcher is order sensitive, so the larger of the
// two directions is used to keep Similarity(a, b) == Similarity(b, a).
// Two empty strings are identical; one empty string matches nothing.
func Similarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	ra, rb := runes(a), runes(b)
	if len(ra) == 0 || len(rb) == 0 {
		return 0.0
	}

	forward := difflib.NewMatcher(ra, rb).Ratio()
	backward := difflib.NewMatcher(rb, ra).Ratio()
	if backward > forward {
		return backward
	}
	return forward
}

func runes(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}
