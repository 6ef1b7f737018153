package approval

import (
	"regexp"
	"strings"
)

// Keyword sets an operator reply is matched against, case-insensitive and
// on word boundaries, so "approved!" counts but "disapprove" does not.
var (
	approveKeywords = []string{"approve", "approved", "yes", "y", "yep", "ja", "confirm"}
	denyKeywords    = []string{"deny", "denied", "reject", "rejected", "no", "n", "nope"}

	keywordPatterns = map[string]*regexp.Regexp{}
)

func init() {
	for _, kw := range append(append([]string{}, approveKeywords...), denyKeywords...) {
		keywordPatterns[kw] = regexp.MustCompile(`\b` + regexp.QuoteMeta(kw) + `\b`)
	}
}

func hasKeyword(keywords []string, text string) bool {
	for _, kw := range keywords {
		if keywordPatterns[kw].MatchString(text) {
			return true
		}
	}
	return false
}

// ParseReply maps a free-text operator reply onto a verdict. Denial wins
// when a reply somehow contains keywords from both sets; an order should
// not ship on an ambiguous reply.
func ParseReply(text string) Verdict {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return VerdictPending
	}
	if hasKeyword(denyKeywords, text) {
		return VerdictDenied
	}
	if hasKeyword(approveKeywords, text) {
		return VerdictApproved
	}
	return VerdictPending
}
