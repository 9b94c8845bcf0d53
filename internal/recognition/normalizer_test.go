package recognition

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizer_Normalize(t *testing.T) {
	n := NewNormalizer(DefaultNoiseWords, 3)

	tests := []struct {
		name     string
		input    string
		maxWords int
		want     string
		wantOK   bool
	}{
		{
			name:   "noise words blanked and case folded",
			input:  "DOLO 650 Tablet",
			want:   "dolo 650",
			wantOK: true,
		},
		{
			name:   "punctuation stripped",
			input:  "Azithral-500!",
			want:   "azithral500",
			wantOK: true,
		},
		{
			name:   "whitespace collapsed",
			input:  "  crocin \t advance  ",
			want:   "crocin advance",
			wantOK: true,
		},
		{
			name:   "too short after cleaning rejected",
			input:  "mg",
			wantOK: false,
		},
		{
			name:   "minimum length counted in runes not bytes",
			input:  "éé",
			wantOK: false,
		},
		{
			name:   "three rune name accepted",
			input:  "éva",
			want:   "éva",
			wantOK: true,
		},
		{
			name:   "pure noise rejected",
			input:  "Tablet mg ml",
			wantOK: false,
		},
		{
			name:     "word limit enforced",
			input:    "one two three four five six seven eight nine",
			maxWords: 8,
			wantOK:   false,
		},
		{
			name:     "word limit boundary accepted",
			input:    "one two three four five six seven eight",
			maxWords: 8,
			want:     "one two three four five six seven eight",
			wantOK:   true,
		},
		{
			name:   "no limit when maxWords is zero",
			input:  "one two three four five six seven eight nine ten eleven twelve thirteen",
			want:   "one two three four five six seven eight nine ten eleven twelve thirteen",
			wantOK: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := n.Normalize(tt.input, tt.maxWords)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestNormalizer_CustomNoiseWords(t *testing.T) {
	n := NewNormalizer([]string{"generic"}, 3)

	got, ok := n.Normalize("Generic Paracetamol", 0)
	assert.True(t, ok)
	assert.Equal(t, "paracetamol", got)

	// default noise list not applied
	got, ok = n.Normalize("Dolo Tablet", 0)
	assert.True(t, ok)
	assert.Equal(t, "dolo tablet", got)
}

func TestTitleCase(t *testing.T) {
	assert.Equal(t, "Dolo 650", TitleCase("dolo 650"))
	assert.Equal(t, "Crocin Advance", TitleCase("crocin advance"))
	assert.Equal(t, "", TitleCase(""))
}
