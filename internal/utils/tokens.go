package utils

import (
	"strings"
)

// ApproximateTokens estimates a token count by whitespace splitting. Used
// only when a provider reports no usage; real counts always win.
func ApproximateTokens(text string) int {
	return len(strings.Fields(text))
}

// ApproximateMessageTokens sums the approximation over message contents.
func ApproximateMessageTokens(contents ...string) int {
	total := 0
	for _, c := range contents {
		total += ApproximateTokens(c)
	}
	return total
}
