package keyword

import (
	"regexp"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Matches a list of words (or short phrases) against free-form text, each as a whole token.
//
// "ass" matches "you ass!" but not "class". Words are checked in list order and the first hit is returned.
type WordMatcher struct {
	words    []string
	patterns []*regexp.Regexp
}

func NewWordMatcher(words []string) *WordMatcher {
	m := &WordMatcher{}
	for _, w := range words {
		folded := strings.TrimSpace(Fold(w))
		if folded == "" {
			continue
		}
		// \b is ASCII-only in RE2, so build the boundary from unicode classes
		re := regexp.MustCompile(`(?:^|[^\pL\pN_])` + regexp.QuoteMeta(folded) + `(?:$|[^\pL\pN_])`)
		m.words = append(m.words, w)
		m.patterns = append(m.patterns, re)
	}
	return m
}

// Returns the first configured word found in text, or empty string.
func (m *WordMatcher) Match(text string) string {
	if len(m.patterns) == 0 || text == "" {
		return ""
	}
	folded := Fold(text)
	for i, re := range m.patterns {
		if re.MatchString(folded) {
			return m.words[i]
		}
	}
	return ""
}

func (m *WordMatcher) Len() int {
	return len(m.patterns)
}

var matcherCache, _ = lru.New[string, *WordMatcher](512)

// Returns a (cached) matcher for the given word list. Word lists come from per-community config, which changes rarely relative to message volume.
func MatcherFor(words []string) *WordMatcher {
	k := strings.Join(words, "\x00")
	if m, ok := matcherCache.Get(k); ok {
		return m
	}
	m := NewWordMatcher(words)
	matcherCache.Add(k, m)
	return m
}
