package conversation

import "strings"

// The affirmative vocabulary is deliberately a fixed, small literal list with
// no fuzzy matching or locale handling. This is a product limitation, not a
// bug: widening it silently would let unrelated replies persist a draft.
var affirmatives = []string{"yes", "confirm", "yep", "ok", "sounds good", "correct"}

// IsAffirmative reports whether input counts as accepting a pending
// confirmation. Matching is case-insensitive and tolerates surrounding
// whitespace and trailing punctuation ("Yes!" matches), nothing more.
// Anything that does not match cancels the pending draft.
func IsAffirmative(input string) bool {
	s := strings.ToLower(strings.TrimSpace(input))
	s = strings.TrimRight(s, "!.?")
	s = strings.TrimSpace(s)
	for _, a := range affirmatives {
		if s == a {
			return true
		}
	}
	return false
}
