package recognition

import "strings"

// Matcher resolves normalized text to catalog names using a two-stage
// fuzzy cascade. It is pure and safe for concurrent use.
type Matcher struct {
	tokenSetThreshold int
	wordThreshold     int
	minWordLength     int
	segmentScorer     SimilarityScorer
	wordScorer        SimilarityScorer
}

// NewMatcher creates a matcher with the given acceptance thresholds
// (0-100). Non-positive thresholds fall back to 70 and 85.
func NewMatcher(tokenSetThreshold, wordThreshold int) *Matcher {
	if tokenSetThreshold <= 0 {
		tokenSetThreshold = 70
	}
	if wordThreshold <= 0 {
		wordThreshold = 85
	}
	return &Matcher{
		tokenSetThreshold: tokenSetThreshold,
		wordThreshold:     wordThreshold,
		minWordLength:     4,
		segmentScorer:     TokenSetScorer{},
		wordScorer:        RatioScorer{},
	}
}

// Match finds the catalog name best matching the normalized text.
// Stage 1 scores the whole segment against every name with the token-set
// scorer. Stage 2, entered only when stage 1 misses the threshold, scores
// each word of at least four characters with the plain ratio scorer and
// keeps the single best pair. Returns ("", false) when both stages miss.
func (m *Matcher) Match(text string, names []string) (string, bool) {
	if text == "" || len(names) == 0 {
		return "", false
	}

	if name, score := BestMatch(m.segmentScorer, text, names); score >= m.tokenSetThreshold {
		return name, true
	}

	bestName := ""
	bestScore := 0
	for _, word := range strings.Fields(text) {
		if len(word) < m.minWordLength {
			continue
		}
		name, score := BestMatch(m.wordScorer, word, names)
		if score > bestScore || (score == bestScore && name < bestName) {
			bestName = name
			bestScore = score
		}
	}
	if bestScore >= m.wordThreshold {
		return bestName, true
	}
	return "", false
}
