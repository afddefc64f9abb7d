package firehose

import (
	"strings"

	"github.com/samber/lo"
)

// MatchesTerms reports whether a post mentions any of the search terms.
// Matching is case-insensitive. A term found in the text counts, and a
// hashtag term also matches a facet or record tag without the leading "#".
// An empty term list matches nothing.
func MatchesTerms(text string, tags []string, terms []string) bool {
	lowered := strings.ToLower(text)
	normalizedTags := lo.Map(tags, func(tag string, _ int) string {
		return strings.ToLower(strings.TrimPrefix(tag, "#"))
	})

	return lo.SomeBy(terms, func(term string) bool {
		term = strings.ToLower(strings.TrimSpace(term))
		if term == "" {
			return false
		}
		if strings.Contains(lowered, term) {
			return true
		}
		return strings.HasPrefix(term, "#") && lo.Contains(normalizedTags, strings.TrimPrefix(term, "#"))
	})
}
