package catalog

import (
	"strings"
	"unicode"

	"golang.org/x/text/language"
)

var supportedTags = []language.Tag{
	language.English,
	language.French,
	language.Spanish,
	language.German,
	language.Hindi,
}

var supportedCodes = []string{"en", "fr", "es", "de", "hi"}

var langMatcher = language.NewMatcher(supportedTags)

// ResolveLanguage maps a BCP-47 tag (e.g. "en-US", "de-AT", "hi") to one of
// the catalog's language codes. The second return is false when the tag does
// not parse or matches none of the supported languages.
func ResolveLanguage(tag string) (string, bool) {
	if tag == "" || tag == "auto" {
		return "", false
	}
	parsed, err := language.Parse(tag)
	if err != nil {
		return "", false
	}
	_, idx, conf := langMatcher.Match(parsed)
	if conf == language.No {
		return "", false
	}
	return supportedCodes[idx], true
}

// stopwords per language, frequent enough to dominate most running text.
var stopwords = map[string][]string{
	"en": {"the", "and", "of", "to", "in", "is", "for", "with", "that", "this"},
	"fr": {"le", "la", "les", "de", "des", "et", "est", "dans", "pour", "une"},
	"es": {"el", "la", "los", "las", "de", "que", "y", "en", "por", "una"},
	"de": {"der", "die", "das", "und", "ist", "von", "mit", "für", "ein", "nicht"},
}

// DetectLanguage guesses the dominant language of the text. Devanagari
// script wins immediately; otherwise the language whose stopwords occur most
// often is chosen, defaulting to English when nothing stands out.
func DetectLanguage(text string) string {
	devanagari := 0
	for _, r := range text {
		if unicode.Is(unicode.Devanagari, r) {
			devanagari++
			if devanagari > 10 {
				return "hi"
			}
		}
	}

	counts := map[string]int{}
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,;:!?()[]\"'")
		for lang, words := range stopwords {
			for _, sw := range words {
				if word == sw {
					counts[lang]++
				}
			}
		}
	}

	best, bestCount := "en", 0
	for _, lang := range supportedCodes {
		if counts[lang] > bestCount {
			best, bestCount = lang, counts[lang]
		}
	}
	return best
}
