// Package analysis scores generated responses for prompt echoing and
// repetition and turns the scores into prompt advice.
package analysis

import (
	"regexp"
	"strings"
)

const (
	// EchoThreshold is the similarity above which a response echoes its prompt.
	EchoThreshold = 0.5
	// RephraseThreshold is the similarity above which Suggest asks for a rephrase.
	RephraseThreshold = 0.7
	// RepetitionThreshold is the repetition score above which Suggest asks for constraints.
	RepetitionThreshold = 0.6
)

const (
	SuggestRephrase = "The response is very similar to your prompt. " +
		"Consider rephrasing your prompt or adding more specific details " +
		"to encourage a more diverse output."
	SuggestConstrain = "The output seems repetitive. Try modifying the prompt to include " +
		"constraints or ask for more variety in the response."
	SuggestKeep = "Your prompt appears to be working well."
)

var sentenceSplit = regexp.MustCompile(`[.!?]+`)

// Metrics are the quality scores of one response.
type Metrics struct {
	PromptSimilarity float64 `json:"prompt_similarity"`
	EchoFlag         float64 `json:"echo_flag"`
	RepetitionScore  float64 `json:"repetition_score"`
}

// Similarity is the Ratcliff/Obershelp ratio of a and b in [0, 1].
func Similarity(a, b string) float64 {
	return newMatcher([]rune(a), []rune(b)).ratio()
}

// Analyze scores response against prompt. Similarity ignores case and
// surrounding whitespace.
func Analyze(prompt, response string) Metrics {
	sim := Similarity(strings.ToLower(strings.TrimSpace(prompt)), strings.ToLower(strings.TrimSpace(response)))
	m := Metrics{PromptSimilarity: sim}
	if sim > EchoThreshold {
		m.EchoFlag = 1
	}
	m.RepetitionScore = repetition(response)
	return m
}

// repetition is the frequency of the most common sentence over the number
// of sentences, or 0 when there are none.
func repetition(text string) float64 {
	counts := make(map[string]int)
	total, most := 0, 0
	for _, s := range sentenceSplit.Split(text, -1) {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		total++
		counts[s]++
		if counts[s] > most {
			most = counts[s]
		}
	}
	if total == 0 {
		return 0
	}
	return float64(most) / float64(total)
}

// Suggest returns prompt advice for a prompt/response pair.
func Suggest(prompt, response string) string {
	m := Analyze(prompt, response)
	switch {
	case m.PromptSimilarity > RephraseThreshold:
		return SuggestRephrase
	case m.RepetitionScore > RepetitionThreshold:
		return SuggestConstrain
	default:
		return SuggestKeep
	}
}
