package recognition

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultNoiseWords lists packaging filler terms that appear on medicine
// boxes but never belong to a product name: units, regulatory markers,
// storage instructions and common manufacturer boilerplate.
var DefaultNoiseWords = []string{
	"tablet", "capsule", "mg", "ml", "exp", "mfg", "batch", "price", "rs", "usp", "ip", "bp",
	"pv", "ltd", "pharmaceuticals", "india", "store", "cool", "dry", "place", "dosage",
	"keep", "reach", "children", "composition", "marketed", "manufactured", "net", "content",
	"transaction", "expedience", "offeric", "warning", "schedule", "prescription",
	"incl", "taxes", "all", "b.no", "date", "regd", "trade", "mark", "limited", "pvt",
	"medication", "physician", "directed", "temperature", "protect", "light", "moisture",
	"not", "for", "use", "only", "sale", "retail", "wholesale", "distributor", "logistics",
	"caution", "practitioner", "registered", "medical", "trihydrate", "zyshield", "zydus",
	"german", "remedies", "division", "industrial", "estate", "ahmedabad", "gujarat",
}

// Normalizer cleans raw OCR segments into match-ready strings.
// It is pure and safe for concurrent use.
type Normalizer struct {
	noiseWords []string
	minLength  int
}

// NewNormalizer creates a normalizer with the given noise-word set.
// A minLength below 1 falls back to 3.
func NewNormalizer(noiseWords []string, minLength int) *Normalizer {
	if minLength < 1 {
		minLength = 3
	}
	words := make([]string, len(noiseWords))
	for i, w := range noiseWords {
		words[i] = strings.ToLower(w)
	}
	return &Normalizer{noiseWords: words, minLength: minLength}
}

// Normalize lowercases the input, blanks every occurrence of a noise word,
// strips non-alphanumeric characters and collapses whitespace. It returns
// false when the result is shorter than the minimum length or, when
// maxWords > 0, has more words than allowed.
func (n *Normalizer) Normalize(raw string, maxWords int) (string, bool) {
	cleaned := strings.ToLower(raw)
	for _, word := range n.noiseWords {
		cleaned = strings.ReplaceAll(cleaned, word, " ")
	}

	var b strings.Builder
	b.Grow(len(cleaned))
	for _, r := range cleaned {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}

	fields := strings.Fields(b.String())
	cleaned = strings.Join(fields, " ")

	if utf8.RuneCountInString(cleaned) < n.minLength {
		return "", false
	}
	if maxWords > 0 && len(fields) > maxWords {
		return "", false
	}
	return cleaned, true
}

// TitleCase converts a normalized string into a display name for
// placeholder catalog entries ("dolo 650" -> "Dolo 650").
func TitleCase(s string) string {
	fields := strings.Fields(s)
	for i, f := range fields {
		runes := []rune(f)
		runes[0] = unicode.ToUpper(runes[0])
		fields[i] = string(runes)
	}
	return strings.Join(fields, " ")
}
