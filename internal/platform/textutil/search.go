package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var searchFolder = transform.Chain(
	norm.NFD,
	runes.Remove(runes.In(unicode.Mn)),
	norm.NFC,
)

var lowerCaser = cases.Lower(language.Und)

// FoldSearchTerm normalises a search keyword for accent- and case-insensitive
// matching: diacritics are stripped, casing folded, and whitespace collapsed.
func FoldSearchTerm(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	folded, _, err := transform.String(searchFolder, value)
	if err != nil {
		folded = value
	}
	folded = lowerCaser.String(folded)
	return strings.Join(strings.Fields(folded), " ")
}

// SearchKeywords splits a title or author string into folded keyword tokens
// suitable for Firestore array-contains prefix matching.
func SearchKeywords(values ...string) []string {
	seen := make(map[string]struct{})
	var keywords []string
	for _, value := range values {
		folded := FoldSearchTerm(value)
		if folded == "" {
			continue
		}
		for _, token := range strings.Fields(folded) {
			if _, ok := seen[token]; ok {
				continue
			}
			seen[token] = struct{}{}
			keywords = append(keywords, token)
		}
	}
	return keywords
}
