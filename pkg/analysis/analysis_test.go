package analysis_test

import (
	"strings"
	"testing"

	"github.com/shreyachakravarty07/AgentTrace/pkg/analysis"
	"github.com/stretchr/testify/assert"
)

func TestSimilarity(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"hello", "hello", 1},
		{"", "", 1},
		{"abc", "", 0},
		{"abcd", "bcde", 0.75},
		{"abxcd", "abcd", 8.0 / 9.0},
		{"tide", "diet", 0.25},
		{"héllo", "hello", 0.8},
	}
	for _, tt := range tests {
		t.Run(tt.a+"/"+tt.b, func(t *testing.T) {
			assert.InDelta(t, tt.want, analysis.Similarity(tt.a, tt.b), 1e-9)
		})
	}

	t.Run("LongSequencesStayBounded", func(t *testing.T) {
		a := strings.Repeat("the cat sat on the mat. ", 20)
		sim := analysis.Similarity(a, a)
		assert.InDelta(t, 1.0, sim, 1e-9)
	})
}

func TestAnalyze(t *testing.T) {
	t.Run("EchoIgnoresCaseAndSpace", func(t *testing.T) {
		m := analysis.Analyze("Hello World", "  hello world ")
		assert.Equal(t, 1.0, m.PromptSimilarity)
		assert.Equal(t, 1.0, m.EchoFlag)
	})

	t.Run("NoEcho", func(t *testing.T) {
		m := analysis.Analyze("tide", "diet")
		assert.Equal(t, 0.0, m.EchoFlag)
	})

	t.Run("Repetition", func(t *testing.T) {
		assert.InDelta(t, 2.0/3.0, analysis.Analyze("p", "Hi. Hi. Bye.").RepetitionScore, 1e-9)
		assert.Equal(t, 1.0, analysis.Analyze("p", "No punctuation here").RepetitionScore)
		assert.Equal(t, 0.0, analysis.Analyze("p", "").RepetitionScore)
		assert.Equal(t, 0.0, analysis.Analyze("p", "?!...").RepetitionScore)
	})
}

func TestSuggest(t *testing.T) {
	assert.Equal(t, analysis.SuggestRephrase, analysis.Suggest("Tell me a joke", "tell me a joke"))
	assert.Equal(t, analysis.SuggestConstrain, analysis.Suggest("Tell me a joke", "A. A. A. B"))
	assert.Equal(t, analysis.SuggestKeep, analysis.Suggest("Write a haiku about autumn", "Leaves fall. Winds blow. Days shorten."))
}
