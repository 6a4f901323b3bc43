package usecase

import (
	"unicode/utf8"

	"council-ai/internal/domain"
)

const (
	// charsPerToken is the average characters per token of English text and
	// code across the major tokenizers.
	charsPerToken = 4
	// ImageTokenPenalty is charged per attached image regardless of size.
	ImageTokenPenalty = 1000
	// messageOverhead covers role markers and separators.
	messageOverhead = 4
)

// CharEstimator approximates token counts from character length.
type CharEstimator struct{}

// CountText implements domain.TokenCounter.
func (CharEstimator) CountText(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + charsPerToken - 1) / charsPerToken
}

// CountMessage implements domain.TokenCounter.
func (e CharEstimator) CountMessage(m domain.Message) int {
	return e.CountText(m.Content) + len(m.Images)*ImageTokenPenalty + messageOverhead
}

// EstimateMessages sums the per-message estimates.
func EstimateMessages(counter domain.TokenCounter, msgs []domain.Message) int {
	total := 0
	for _, m := range msgs {
		total += counter.CountMessage(m)
	}
	return total
}

var _ domain.TokenCounter = CharEstimator{}
