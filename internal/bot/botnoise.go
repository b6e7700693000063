package bot

import "strings"

// Accounts known to mention other accounts mechanically. Replying to these
// produces reply loops or pointless noise, so they are filtered before
// ranking. Curated by hand; extend as new offenders show up.
var knownBotAccounts = map[string]struct{}{
	"threadreaderapp": {},
	"savetovideo":     {},
	"memdotai":        {},
	"sendvidbot":      {},
	"downloaderbot":   {},
	"threadunrollbot": {},
	"remindme_ofthis": {},
	"quotedreplies":   {},
	"makeitaquote":    {},
	"colorize_bot":    {},
	"translatorbot":   {},
	"wayback_machine": {},
	"unrollthreadcom": {},
	"pikaso_me":       {},
	"readwiseio":      {},
	"vidburner":       {},
	"snapquote_bot":   {},
	"blockpartyapp_":  {},
	"explainthisbob":  {},
	"grok":            {},
}

// Username suffixes that near-always indicate automation.
var botSuffixes = []string{
	"bot",
	"_bot",
	"gpt",
	"_gpt",
	"status",
	"_ai",
}

// IsLikelyBot reports whether a username looks like an automated account.
// Matching is case-insensitive: the curated set first, then suffix
// heuristics.
func IsLikelyBot(username string) bool {
	name := strings.ToLower(strings.TrimPrefix(username, "@"))
	if name == "" {
		return false
	}

	if _, ok := knownBotAccounts[name]; ok {
		return true
	}

	for _, suffix := range botSuffixes {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}
