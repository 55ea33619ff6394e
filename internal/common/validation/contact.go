package validation

import (
	"regexp"
	"strings"
)

var (
	emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	phonePattern = regexp.MustCompile(`^\+?[\d\s\-\(\)]{7,}$`)
	nonDigits    = regexp.MustCompile(`\D`)
)

// ValidateEmail validates email format
func ValidateEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// ValidatePhone validates basic phone number format
func ValidatePhone(phone string) bool {
	return phonePattern.MatchString(phone)
}

// NormalizePhone strips everything but digits. Comparison between two numbers
// is suffix-based so "+40 721 234 567" and "0721234567" agree.
func NormalizePhone(phone string) string {
	return nonDigits.ReplaceAllString(phone, "")
}

// PhonesMatch reports whether two raw phone strings refer to the same number:
// after normalization one must be a suffix of the other, and the shared
// suffix must be at least 7 digits.
func PhonesMatch(a, b string) bool {
	na, nb := NormalizePhone(a), NormalizePhone(b)
	if len(na) < 7 || len(nb) < 7 {
		return false
	}
	if len(na) > len(nb) {
		na, nb = nb, na
	}
	return strings.HasSuffix(nb, na)
}

// NormalizeEmail lowercases and trims an address for exact comparison.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
