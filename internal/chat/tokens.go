package chat

import "unicode/utf8"

const charsPerToken = 4

// EstimateTokens approximates a token count as one token per four characters,
// rounded up.
func EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + charsPerToken - 1) / charsPerToken
}
