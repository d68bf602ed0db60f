package catalog

import "strings"

// Luhn reports whether the digit string passes the Luhn mod-10 check.
func Luhn(digits string) bool {
	if digits == "" {
		return false
	}
	sum := 0
	alt := false
	for i := len(digits) - 1; i >= 0; i-- {
		c := digits[i]
		if c < '0' || c > '9' {
			return false
		}
		n := int(c - '0')
		if alt {
			n *= 2
			if n > 9 {
				n -= 9
			}
		}
		sum += n
		alt = !alt
	}
	return sum%10 == 0
}

// DigitsOf strips everything but ASCII digits.
func DigitsOf(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ValidCardNumber applies the Luhn check to a candidate card number that may
// contain spaces or dashes.
func ValidCardNumber(candidate string) bool {
	digits := DigitsOf(candidate)
	if len(digits) < 13 || len(digits) > 19 {
		return false
	}
	return Luhn(digits)
}

// ibanLengths holds the registered IBAN length per country code.
var ibanLengths = map[string]int{
	"AD": 24, "AE": 23, "AT": 20, "BE": 16, "BG": 22, "CH": 21, "CY": 28,
	"CZ": 24, "DE": 22, "DK": 18, "EE": 20, "ES": 24, "FI": 18, "FR": 27,
	"GB": 22, "GR": 27, "HR": 21, "HU": 28, "IE": 22, "IS": 26,
	"IT": 27, "LI": 21, "LT": 20, "LU": 20, "LV": 21, "MC": 27, "MT": 31,
	"NL": 18, "NO": 15, "PL": 28, "PT": 25, "RO": 24, "SE": 24, "SI": 19,
	"SK": 24, "SM": 27, "TR": 26,
}

// ValidIBAN checks country, length, and the ISO 13616 mod-97 remainder.
// Separating spaces are ignored.
func ValidIBAN(candidate string) bool {
	s := strings.ToUpper(strings.ReplaceAll(candidate, " ", ""))
	if len(s) < 15 || len(s) > 34 {
		return false
	}
	want, ok := ibanLengths[s[:2]]
	if !ok {
		return false
	}
	if len(s) != want {
		return false
	}
	// move the country code and check digits to the end, then mod 97 over
	// the digit expansion (A=10 .. Z=35)
	rearranged := s[4:] + s[:4]
	rem := 0
	for i := 0; i < len(rearranged); i++ {
		c := rearranged[i]
		switch {
		case c >= '0' && c <= '9':
			rem = (rem*10 + int(c-'0')) % 97
		case c >= 'A' && c <= 'Z':
			v := int(c-'A') + 10
			rem = (rem*100 + v) % 97
		default:
			return false
		}
	}
	return rem == 1
}

// ValidBIC requires the 5th and 6th characters to be a known country code,
// which filters out ordinary uppercase words the shape pattern also matches.
func ValidBIC(candidate string) bool {
	s := strings.ToUpper(strings.TrimSpace(candidate))
	if len(s) != 8 && len(s) != 11 {
		return false
	}
	_, ok := ibanLengths[s[4:6]]
	if !ok {
		// BIC covers more countries than the IBAN registry
		switch s[4:6] {
		case "US", "CA", "AU", "NZ", "JP", "CN", "HK", "SG", "ZA", "BR", "MX", "IN":
			ok = true
		}
	}
	return ok
}
