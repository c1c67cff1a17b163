// Package convention derives display names from slugs and field names.
package convention

import (
	"strings"
	"unicode"
)

// ToWords turns a field name or slug into a title-cased label:
// "createdAt" -> "Created At", "parent-page" -> "Parent Page", "meta_title" -> "Meta Title".
func ToWords(name string) string {
	if name == "" {
		return ""
	}

	var words []string
	var current []rune
	flush := func() {
		if len(current) > 0 {
			words = append(words, string(current))
			current = current[:0]
		}
	}

	runes := []rune(name)
	for i, r := range runes {
		switch {
		case r == '-' || r == '_' || r == ' ' || r == '.':
			flush()
			continue
		case unicode.IsUpper(r) && i > 0 && !unicode.IsUpper(runes[i-1]):
			flush()
		case unicode.IsUpper(r) && i > 0 && i+1 < len(runes) && unicode.IsLower(runes[i+1]):
			// "HTMLBody" splits as "HTML Body"
			flush()
		}
		current = append(current, r)
	}
	flush()

	for i, w := range words {
		words[i] = capitalize(w)
	}
	return strings.Join(words, " ")
}

// CollectionLabels derives singular and plural labels from a collection slug.
// Slugs are usually plural ("pages"), so the singular is derived from it.
func CollectionLabels(slug string) (singular, plural string) {
	words := ToWords(slug)
	if words == "" {
		return "", ""
	}

	idx := strings.LastIndex(words, " ")
	head, last := "", words
	if idx >= 0 {
		head, last = words[:idx+1], words[idx+1:]
	}

	singular = head + Singularize(last)
	plural = head + Pluralize(Singularize(last))
	return singular, plural
}

func capitalize(s string) string {
	r := []rune(s)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}
