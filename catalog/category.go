// Package catalog holds the pattern catalog the detector scans with:
// per-category regular expressions with optional checksum validators,
// organized per language. Catalog order is meaningful; it breaks ties
// between overlapping matches of different categories.
package catalog

import "fmt"

// Category identifies one kind of sensitive data.
type Category string

const (
	CategoryPhone      Category = "phone"
	CategoryEmail      Category = "email"
	CategoryCreditCard Category = "credit_card"
	CategoryCVV        Category = "cvv"
	CategoryExpiration Category = "expiration"
	CategoryBIC        Category = "bic"
	CategoryIBAN       Category = "iban"
	CategoryAadhaar    Category = "aadhaar"
	CategoryPAN        Category = "pan"
	CategorySSN        Category = "ssn"
	CategoryLink       Category = "link"
	CategoryCustom     Category = "custom"
)

// All returns every built-in category in catalog order.
func All() []Category {
	return []Category{
		CategoryCreditCard,
		CategoryIBAN,
		CategoryBIC,
		CategoryCVV,
		CategoryExpiration,
		CategorySSN,
		CategoryAadhaar,
		CategoryPAN,
		CategoryEmail,
		CategoryPhone,
		CategoryLink,
	}
}

// Parse maps a config string to a Category.
func Parse(s string) (Category, error) {
	switch Category(s) {
	case CategoryPhone, CategoryEmail, CategoryCreditCard, CategoryCVV,
		CategoryExpiration, CategoryBIC, CategoryIBAN, CategoryAadhaar,
		CategoryPAN, CategorySSN, CategoryLink, CategoryCustom:
		return Category(s), nil
	}
	return "", fmt.Errorf("unknown category %q", s)
}

// Label returns the human-readable name used in reports.
func (c Category) Label() string {
	switch c {
	case CategoryPhone:
		return "Phone Numbers"
	case CategoryEmail:
		return "Email Addresses"
	case CategoryCreditCard:
		return "Credit Card Numbers"
	case CategoryCVV:
		return "CVV/CVC Codes"
	case CategoryExpiration:
		return "Card Expiration Dates"
	case CategoryBIC:
		return "BIC/SWIFT Codes"
	case CategoryIBAN:
		return "IBAN Numbers"
	case CategoryAadhaar:
		return "Aadhaar Numbers"
	case CategoryPAN:
		return "PAN Numbers"
	case CategorySSN:
		return "National Identifiers"
	case CategoryLink:
		return "Links"
	case CategoryCustom:
		return "Custom Pattern"
	}
	return string(c)
}
