package convention

import "strings"

// irregular maps singular to plural for words the suffix rules get wrong.
var irregular = map[string]string{
	"person":   "people",
	"man":      "men",
	"woman":    "women",
	"child":    "children",
	"mouse":    "mice",
	"index":    "indices",
	"vertex":   "vertices",
	"analysis": "analyses",
	"datum":    "data",
	"medium":   "media",
	"status":   "statuses",
	"news":     "news",
	"series":   "series",
}

// Pluralize returns the English plural of word, keeping the case of its first letter.
func Pluralize(word string) string {
	if word == "" {
		return ""
	}

	lower := strings.ToLower(word)
	if plural, ok := irregular[lower]; ok {
		return matchCase(word, plural)
	}

	switch {
	case hasAnySuffix(lower, "s", "x", "z", "ch", "sh"):
		return word + "es"
	case strings.HasSuffix(lower, "y") && len(lower) > 1 && !isVowel(lower[len(lower)-2]):
		return word[:len(word)-1] + "ies"
	case strings.HasSuffix(lower, "fe"):
		return word[:len(word)-2] + "ves"
	case strings.HasSuffix(lower, "f") && !strings.HasSuffix(lower, "ff"):
		return word[:len(word)-1] + "ves"
	}
	return word + "s"
}

// Singularize reverses Pluralize.
func Singularize(word string) string {
	if word == "" {
		return ""
	}

	lower := strings.ToLower(word)
	for singular, plural := range irregular {
		if plural == lower {
			return matchCase(word, singular)
		}
	}

	switch {
	case strings.HasSuffix(lower, "ies") && len(lower) > 3:
		return word[:len(word)-3] + "y"
	case strings.HasSuffix(lower, "ves"):
		return word[:len(word)-3] + "f"
	case hasAnySuffix(lower, "ses", "xes", "zes", "ches", "shes"):
		return word[:len(word)-2]
	case strings.HasSuffix(lower, "s") && !hasAnySuffix(lower, "ss", "us", "is"):
		return word[:len(word)-1]
	}
	return word
}

func matchCase(original, replacement string) string {
	if original[0] >= 'A' && original[0] <= 'Z' {
		return strings.ToUpper(replacement[:1]) + replacement[1:]
	}
	return replacement
}

func hasAnySuffix(s string, suffixes ...string) bool {
	for _, suffix := range suffixes {
		if strings.HasSuffix(s, suffix) {
			return true
		}
	}
	return false
}

func isVowel(c byte) bool {
	switch c {
	case 'a', 'e', 'i', 'o', 'u':
		return true
	default:
		return false
	}
}
