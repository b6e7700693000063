package bot

import (
	"regexp"
	"strings"
)

var (
	mentionPattern    = regexp.MustCompile(`@\w+`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// NormalizePrompt turns raw mention text into the prompt handed to the answer
// engine: leading @handles stripped, interior whitespace collapsed.
func NormalizePrompt(text string) string {
	rest := strings.TrimSpace(text)
	for {
		trimmed := strings.TrimSpace(rest)
		loc := mentionPattern.FindStringIndex(trimmed)
		if loc == nil || loc[0] != 0 {
			rest = trimmed
			break
		}
		rest = trimmed[loc[1]:]
	}
	return whitespacePattern.ReplaceAllString(strings.TrimSpace(rest), " ")
}

// CountMentions counts @-handles in the raw text, the cheap depth proxy used
// for ranking.
func CountMentions(text string) int {
	return len(mentionPattern.FindAllString(text, -1))
}
