package recognition

import (
	fuzzy "github.com/paul-mannino/go-fuzzywuzzy"
)

// SimilarityScorer scores two strings on a 0-100 scale
type SimilarityScorer interface {
	Score(a, b string) int
}

// TokenSetScorer compares strings as word sets, ignoring word order and
// duplicates. Good for whole detected segments against catalog names.
type TokenSetScorer struct{}

func (TokenSetScorer) Score(a, b string) int {
	return fuzzy.TokenSetRatio(a, b)
}

// RatioScorer is the plain character-level similarity. Used for the
// per-word fallback stage.
type RatioScorer struct{}

func (RatioScorer) Score(a, b string) int {
	return fuzzy.Ratio(a, b)
}

// BestMatch returns the candidate with the highest score. Ties resolve
// to the lexicographically smaller name so results are deterministic
// regardless of catalog ordering. Returns ("", 0) for an empty slate.
func BestMatch(scorer SimilarityScorer, query string, candidates []string) (string, int) {
	bestName := ""
	bestScore := -1
	for _, name := range candidates {
		score := scorer.Score(query, name)
		if score > bestScore || (score == bestScore && name < bestName) {
			bestName = name
			bestScore = score
		}
	}
	if bestScore < 0 {
		return "", 0
	}
	return bestName, bestScore
}
