package usecase

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const maxEntityTerms = 5

var entityStopwords = map[string]struct{}{
	"what": {}, "which": {}, "where": {}, "when": {}, "who": {}, "why": {},
	"how": {}, "the": {}, "a": {}, "an": {}, "is": {}, "are": {}, "was": {},
	"were": {}, "do": {}, "does": {}, "did": {}, "show": {}, "tell": {},
	"compare": {}, "between": {}, "about": {}, "many": {}, "much": {},
	"and": {}, "for": {}, "with": {}, "from": {}, "since": {}, "after": {},
}

// extractEntityTerms pulls graph seed terms out of the query text: quoted
// phrases first, then capitalized word runs, then long salient tokens.
// Returns at most maxEntityTerms, in discovery order.
func extractEntityTerms(text string) []string {
	seen := make(map[string]struct{}, maxEntityTerms)
	out := make([]string, 0, maxEntityTerms)
	add := func(term string) {
		term = strings.TrimSpace(term)
		if len(term) < 3 || len(out) >= maxEntityTerms {
			return
		}
		key := strings.ToLower(term)
		if _, stop := entityStopwords[key]; stop {
			return
		}
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		out = append(out, term)
	}

	parts := strings.Split(text, `"`)
	for i := 1; i < len(parts); i += 2 {
		add(parts[i])
	}

	var run []string
	flush := func() {
		if len(run) > 0 {
			add(strings.Join(run, " "))
			run = run[:0]
		}
	}
	for _, word := range strings.Fields(text) {
		cleaned := strings.TrimFunc(word, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if cleaned == "" {
			flush()
			continue
		}
		first, _ := utf8.DecodeRuneInString(cleaned)
		if unicode.IsUpper(first) {
			run = append(run, cleaned)
			continue
		}
		flush()
	}
	flush()

	for _, token := range splitAlphaNumLower(text) {
		if len(token) >= 8 {
			add(token)
		}
	}

	return out
}
