package sources

import "strings"

// queryTerms splits the query on whitespace and lowercases each term for
// case-insensitive matching. An empty query yields no terms, which matches
// everything.
func queryTerms(query string) []string {
	fields := strings.Fields(strings.ToLower(query))
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		if f != "" {
			terms = append(terms, f)
		}
	}
	return terms
}

// matchesAnyTerm reports whether the text contains at least one of the terms,
// case-insensitively. With no terms every text matches.
func matchesAnyTerm(text string, terms []string) bool {
	if len(terms) == 0 {
		return true
	}
	lowered := strings.ToLower(text)
	for _, term := range terms {
		if strings.Contains(lowered, term) {
			return true
		}
	}
	return false
}
