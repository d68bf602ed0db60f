package catalog

import (
	"fmt"
	"regexp"
)

// Rule is one scannable pattern. Validate, when set, must also accept the
// matched text before the match is reported; it carries checksum logic the
// regular expression cannot express. A pattern with a capture group reports
// only the group: labeled rules ("IBAN: ...") match label and value but
// redact the value alone.
type Rule struct {
	Category Category
	Pattern  *regexp.Regexp
	Validate func(match string) bool
}

// shared rules apply to every language: the formats are international.
var sharedRules = []Rule{
	{Category: CategoryCreditCard, Pattern: regexp.MustCompile(`\b(?:\d{4}[- ]?){3}\d{4}\b`), Validate: ValidCardNumber},
	{Category: CategoryCreditCard, Pattern: regexp.MustCompile(`\b\d{13,19}\b`), Validate: ValidCardNumber},
	{Category: CategoryIBAN, Pattern: regexp.MustCompile(`\b[A-Z]{2}\d{2}(?: ?[0-9A-Z]{4}){2,7}(?: ?[0-9A-Z]{1,3})?\b`), Validate: ValidIBAN},
	{Category: CategoryIBAN, Pattern: regexp.MustCompile(`(?i)\bIBAN\s*:?\s*([A-Z]{2}\d{2}[0-9A-Z]{10,30})\b`)},
	{Category: CategoryBIC, Pattern: regexp.MustCompile(`\b[A-Z]{6}[A-Z0-9]{2}(?:[A-Z0-9]{3})?\b`), Validate: ValidBIC},
	{Category: CategoryBIC, Pattern: regexp.MustCompile(`(?i)\bBIC\s*:?\s*([A-Z0-9]{8,11})\b`)},
	{Category: CategoryCVV, Pattern: regexp.MustCompile(`(?i)\b(?:cvv2?|cvc2?|csc|cid|security\s+code|verification\s+code)\s*:?\s*(\d{3,4})\b`)},
	{Category: CategoryCVV, Pattern: regexp.MustCompile(`(?i)\b(\d{3,4})\s*\((?:cvv|cvc|csc|cid)\)`)},
	{Category: CategoryExpiration, Pattern: regexp.MustCompile(`(?i)\b(?:expiry|expiration|exp\.?(?:\s+date)?|valid\s+thru)\s*:?\s*(\d{1,2}/\d{2,4})\b`)},
	{Category: CategoryEmail, Pattern: regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)},
	{Category: CategoryLink, Pattern: regexp.MustCompile(`\bhttps?://[^\s<>()"']+`)},
	{Category: CategoryLink, Pattern: regexp.MustCompile(`\bwww\.[^\s<>()"']+`)},
}

// languageRules carries the formats that differ per language: phone numbers
// and national identifiers.
var languageRules = map[string][]Rule{
	"en": {
		{Category: CategorySSN, Pattern: regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
		{Category: CategorySSN, Pattern: regexp.MustCompile(`(?i)\bSSN\s*:?\s*(\d{3}-?\d{2}-?\d{4})\b`)},
		{Category: CategoryPhone, Pattern: regexp.MustCompile(`\b(?:\+\d{1,3}[-.\s]?)?\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}\b`)},
	},
	"fr": {
		{Category: CategorySSN, Pattern: regexp.MustCompile(`\b[12]\s?\d{2}\s?\d{2}\s?\d{2}\s?\d{3}\s?\d{3}\s?\d{2}\b`)},
		{Category: CategoryPhone, Pattern: regexp.MustCompile(`(?:(?:\+|00)33|\b0)\s*[1-9](?:[\s.-]?\d{2}){4}\b`)},
	},
	"es": {
		{Category: CategorySSN, Pattern: regexp.MustCompile(`\b\d{8}[A-Z]\b`)},
		{Category: CategorySSN, Pattern: regexp.MustCompile(`\b[XYZ]\d{7}[A-Z]\b`)},
		{Category: CategoryPhone, Pattern: regexp.MustCompile(`\b(?:\+34|0034|34)?[\s-]?[6789](?:[\s-]?\d{2}){4}\b`)},
	},
	"de": {
		{Category: CategorySSN, Pattern: regexp.MustCompile(`\b\d{2}\s?\d{3}\s?\d{3}\s?\d{3}\b`)},
		{Category: CategoryPhone, Pattern: regexp.MustCompile(`\b(?:\+49|0049|0)[\s-]?[1-9]\d{1,4}[\s-]?\d{4,8}\b`)},
	},
	"hi": {
		{Category: CategoryAadhaar, Pattern: regexp.MustCompile(`\b[2-9]\d{3}\s?\d{4}\s?\d{4}\b`)},
		{Category: CategoryPAN, Pattern: regexp.MustCompile(`\b[A-Z]{5}\d{4}[A-Z]\b`)},
		{Category: CategoryPhone, Pattern: regexp.MustCompile(`\b(?:\+91[-\s]?)?[6789]\d{9}\b`)},
		{Category: CategoryPhone, Pattern: regexp.MustCompile(`\b0\d{2,4}[-\s]?\d{6,8}\b`)},
	},
}

// Catalog is the ordered rule set for one scan. Earlier rules win ties
// between equally long overlapping matches.
type Catalog struct {
	Language string
	Rules    []Rule
}

// Option narrows or extends the catalog.
type Option func(*build)

type build struct {
	categories map[Category]bool
	custom     []Rule
}

// WithCategories restricts the catalog to the given categories. Without it
// every built-in category is active.
func WithCategories(cats ...Category) Option {
	return func(b *build) {
		if b.categories == nil {
			b.categories = map[Category]bool{}
		}
		for _, c := range cats {
			b.categories[c] = true
		}
	}
}

// WithCustomText adds a literal text to redact wherever it appears.
func WithCustomText(text string) Option {
	return func(b *build) {
		if text == "" {
			return
		}
		b.custom = append(b.custom, Rule{
			Category: CategoryCustom,
			Pattern:  regexp.MustCompile(`\b` + regexp.QuoteMeta(text) + `\b`),
		})
	}
}

// WithCustomPattern adds a caller-supplied regular expression under the
// custom category.
func WithCustomPattern(expr string) (Option, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("custom pattern: %w", err)
	}
	return func(b *build) {
		b.custom = append(b.custom, Rule{Category: CategoryCustom, Pattern: re})
	}, nil
}

// ForLanguage assembles the catalog for a resolved language code. Unknown
// languages fall back to the English tables; the shared international rules
// are always present. Custom rules come first so explicit operator intent
// wins ties against the built-ins.
func ForLanguage(lang string, opts ...Option) *Catalog {
	var b build
	for _, opt := range opts {
		opt(&b)
	}

	perLang, ok := languageRules[lang]
	if !ok {
		lang = "en"
		perLang = languageRules["en"]
	}

	rules := make([]Rule, 0, len(b.custom)+len(sharedRules)+len(perLang))
	rules = append(rules, b.custom...)
	for _, r := range sharedRules {
		if b.categories == nil || b.categories[r.Category] {
			rules = append(rules, r)
		}
	}
	for _, r := range perLang {
		if b.categories == nil || b.categories[r.Category] {
			rules = append(rules, r)
		}
	}
	return &Catalog{Language: lang, Rules: rules}
}

// Languages lists the language codes with dedicated rule tables.
func Languages() []string {
	return []string{"en", "fr", "es", "de", "hi"}
}
