package ranking

import (
	"strings"
	"unicode"
)

// defaultStopWords are noise tokens stripped from both sides before matching.
var defaultStopWords = []string{
	"a", "an", "the", "of", "and", "in", "on", "by",
	"unabridged", "abridged", "audiobook", "novel",
}

// defaultReplacements normalize punctuation variants before tokenizing.
var defaultReplacements = map[string]string{
	"&": " and ",
	"+": " and ",
	"'": "",
	"’": "",
}

// normalizer prepares titles for token-set comparison.
type normalizer struct {
	replacements map[string]string
	stopWords    map[string]struct{}
}

func newNormalizer(cfg Config) *normalizer {
	n := &normalizer{
		replacements: map[string]string{},
		stopWords:    map[string]struct{}{},
	}
	for k, v := range defaultReplacements {
		n.replacements[k] = v
	}
	for k, v := range cfg.CharacterReplacements {
		n.replacements[k] = v
	}
	for _, w := range defaultStopWords {
		n.stopWords[w] = struct{}{}
	}
	for _, w := range cfg.StopWords {
		n.stopWords[strings.ToLower(w)] = struct{}{}
	}
	return n
}

// tokens lowercases, applies replacements, splits on non-alphanumerics, and
// drops stop words. Returns a set for order-insensitive comparison.
func (n *normalizer) tokens(s string) map[string]struct{} {
	s = strings.ToLower(s)
	for from, to := range n.replacements {
		s = strings.ReplaceAll(s, strings.ToLower(from), to)
	}

	fields := strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if _, stop := n.stopWords[f]; stop {
			continue
		}
		set[f] = struct{}{}
	}
	return set
}

// coverage reports what fraction of query tokens appear in the candidate.
func coverage(query, candidate map[string]struct{}) float64 {
	if len(query) == 0 {
		return 0
	}
	matched := 0
	for tok := range query {
		if _, ok := candidate[tok]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(query))
}

// containsAuthorToken reports whether any meaningful author token (length 3+)
// appears in the candidate token set. Short tokens like initials match too
// noisily to count.
func containsAuthorToken(author map[string]struct{}, candidate map[string]struct{}) bool {
	for tok := range author {
		if len(tok) < 3 {
			continue
		}
		if _, ok := candidate[tok]; ok {
			return true
		}
	}
	return false
}
