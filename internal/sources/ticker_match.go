package sources

import "strings"

// legalSuffixes are corporate forms stripped during name normalization.
var legalSuffixes = []string{"s.a.", "sa", "s.l.", "sl", "sociedad anonima", "group", "grupo"}

// accentReplacer folds the Spanish accented vowels used in company names.
var accentReplacer = strings.NewReplacer(
	"á", "a", "é", "e", "í", "i", "ó", "o", "ú", "u", "ü", "u", "ñ", "n",
	"Á", "a", "É", "e", "Í", "i", "Ó", "o", "Ú", "u", "Ü", "u", "Ñ", "n",
)

// NormalizeCompanyName lowercases, folds accents, strips punctuation and
// trailing legal-form suffixes, and collapses whitespace.
func NormalizeCompanyName(name string) string {
	s := accentReplacer.Replace(strings.ToLower(strings.TrimSpace(name)))
	s = strings.Map(func(r rune) rune {
		switch r {
		case ',', ';', '"', '\'', '(', ')':
			return -1
		}
		return r
	}, s)
	s = strings.Join(strings.Fields(s), " ")

	for _, suffix := range legalSuffixes {
		if strings.HasSuffix(s, " "+suffix) {
			s = strings.TrimSpace(strings.TrimSuffix(s, " "+suffix))
		}
	}
	return s
}

// fuzzyLookup scans the curated table for the closest normalized name and
// returns its ticker with the similarity score.
func fuzzyLookup(normalized string) (string, float64) {
	bestTicker := ""
	bestScore := 0.0
	for name, ticker := range curatedTickers {
		score := nameSimilarity(normalized, name)
		if score > bestScore {
			bestScore = score
			bestTicker = ticker
		}
	}
	return bestTicker, bestScore
}

// nameSimilarity returns 1 - normalized Levenshtein distance, in [0,1].
// Containment of one name in the other short-circuits to a strong match
// since curated entries are often a prefix of the full legal name.
func nameSimilarity(a, b string) float64 {
	if a == b {
		return 1
	}
	if a == "" || b == "" {
		return 0
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return 0.9
	}

	distance := levenshtein(a, b)
	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}
	return 1 - float64(distance)/float64(longest)
}

// levenshtein computes the edit distance with a two-row rolling table.
func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)

	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = minInt(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

func minInt(values ...int) int {
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}
	return m
}
