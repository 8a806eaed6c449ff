package helper

import (
	"strings"
	"unicode"
)

// Underscore turns a Go field name into its snake_case form: "ArticleIDs"
// becomes "article_ids".
func Underscore(s string) string {
	runes := []rune(s)
	var b strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) {
			prevLower := i > 0 && !unicode.IsUpper(runes[i-1])
			// "IDs" is a plural acronym, not the start of a new word
			pluralAcronym := i+2 == len(runes) && runes[i+1] == 's'
			nextLower := i > 0 && i+1 < len(runes) && unicode.IsLower(runes[i+1]) && unicode.IsUpper(runes[i-1]) && !pluralAcronym
			if prevLower || nextLower {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
