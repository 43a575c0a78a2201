package classify

import (
	"fmt"
	"strings"
	"unicode"
)

var (
	positiveWords   = []string{"interested", "yes", "great", "good", "like", "love"}
	negativePhrases = []string{"not interested"}
	negativeWords   = []string{"no", "bad", "dislike", "unfortunately"}
)

// Fallback classifies text by counting positive and negative keywords.
// Negative phrases are counted and removed before single words are matched,
// so "not interested" does not also count as "interested".
func Fallback(text string) Analysis {
	pos, neg := keywordCounts(text)

	a := Analysis{
		Confidence:            0.3,
		KeyPoints:             []string{"Fallback analysis used"},
		Urgency:               "low",
		EngagementScore:       0.5,
		RecommendedNextAction: "manual_review",
		Reasoning:             fmt.Sprintf("Keyword fallback: %d positive, %d negative", pos, neg),
		Fallback:              true,
	}
	switch {
	case pos > neg:
		a.Sentiment, a.Intent, a.Category = "positive", "interested", "INTERESTED"
	case neg > pos:
		a.Sentiment, a.Intent, a.Category = "negative", "not_interested", "NOT_INTERESTED"
	default:
		a.Sentiment, a.Intent, a.Category = "neutral", "needs_more_info", "NEEDS_MORE_INFO"
	}
	return a
}

func keywordCounts(text string) (pos, neg int) {
	lower := strings.ToLower(text)
	for _, p := range negativePhrases {
		neg += strings.Count(lower, p)
		lower = strings.ReplaceAll(lower, p, " ")
	}

	words := strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r) && r != '\''
	})
	for _, w := range words {
		if contains(positiveWords, w) {
			pos++
		}
		if contains(negativeWords, w) {
			neg++
		}
	}
	return pos, neg
}

func contains(list []string, w string) bool {
	for _, s := range list {
		if s == w {
			return true
		}
	}
	return false
}
