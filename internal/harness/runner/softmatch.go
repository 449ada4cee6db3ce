package runner

import "strings"

// fillerPhrases are stripped from the reference answer before keyword
// extraction: they carry no signal about whether the model's answer
// covers the same ground.
var fillerPhrases = []string{"a ", "an ", "the ", "or equivalent"}

// SoftMatch is the lexical scoring rule for S2 cases: strip filler
// phrases from the reference answer, extract its keyword tokens, and
// require at least half of them to appear as substrings of the model's
// answer. The hit ratio is computed only over reference-derived
// keywords, never over the model's own tokens.
func SoftMatch(expected, actual string) bool {
	expected = strings.ToLower(expected)
	actual = strings.ToLower(actual)
	for _, f := range fillerPhrases {
		expected = strings.ReplaceAll(expected, f, "")
	}

	keywords := keywordTokens(expected)
	if len(keywords) == 0 {
		return true
	}

	hits := 0
	for _, k := range keywords {
		if strings.Contains(actual, k) {
			hits++
		}
	}
	return float64(hits)/float64(len(keywords)) >= 0.5
}

// keywordTokens splits s on whitespace, strips surrounding punctuation,
// and keeps tokens of at least two characters.
func keywordTokens(s string) []string {
	fields := strings.Fields(s)
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".,;:!?\"'()[]{}")
		if len(f) >= 2 {
			out = append(out, f)
		}
	}
	return out
}
