package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	dErrors "cardvault/pkg/domain-errors"
)

const (
	minCardDigits     = 12
	maxCardDigits     = 19
	minHolderNameRune = 3
)

// NormalizeNumber strips every non-digit from a card number.
func NormalizeNumber(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// LastFour returns the trailing four digits of a normalized number.
func LastFour(normalized string) string {
	if len(normalized) < 4 {
		return normalized
	}
	return normalized[len(normalized)-4:]
}

// Expiration is a parsed card expiry month.
type Expiration struct {
	Year  int
	Month time.Month
}

// ExpiresAt is the last instant of the expiry month, in UTC.
func (e Expiration) ExpiresAt() time.Time {
	firstOfNext := time.Date(e.Year, e.Month+1, 1, 0, 0, 0, 0, time.UTC)
	return firstOfNext.Add(-time.Nanosecond)
}

// Expired reports whether the card can no longer be used at now.
func (e Expiration) Expired(now time.Time) bool {
	return now.UTC().After(e.ExpiresAt())
}

// Wire renders the expiry in the provider's YY/MM format.
func (e Expiration) Wire() string {
	return fmt.Sprintf("%02d/%02d", e.Year%100, int(e.Month))
}

// ParseExpiration reads "YY/MM". When the second field is not a month but the
// first is, the value is read as "MM/YY", so "12/23" is December 2023.
func ParseExpiration(raw string) (Expiration, error) {
	first, second, ok := strings.Cut(strings.TrimSpace(raw), "/")
	if !ok {
		return Expiration{}, dErrors.New(dErrors.CodeValidation, "expirationDate must be YY/MM")
	}
	a, errA := parseTwoDigits(first)
	b, errB := parseTwoDigits(second)
	if errA != nil || errB != nil {
		return Expiration{}, dErrors.New(dErrors.CodeValidation, "expirationDate must be YY/MM")
	}

	switch {
	case isMonth(b):
		return Expiration{Year: 2000 + a, Month: time.Month(b)}, nil
	case isMonth(a):
		return Expiration{Year: 2000 + b, Month: time.Month(a)}, nil
	default:
		return Expiration{}, dErrors.New(dErrors.CodeValidation, "expirationDate has no valid month")
	}
}

func parseTwoDigits(s string) (int, error) {
	s = strings.TrimSpace(s)
	if len(s) != 2 || !isDigits(s) {
		return 0, fmt.Errorf("expected two digits, got %q", s)
	}
	return strconv.Atoi(s)
}

func isMonth(v int) bool { return v >= 1 && v <= 12 }

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

// ValidateNumber checks a normalized card number length.
func ValidateNumber(normalized string) error {
	if len(normalized) < minCardDigits || len(normalized) > maxCardDigits {
		return dErrors.New(dErrors.CodeValidation, "cardNumber must contain 12 to 19 digits")
	}
	return nil
}

// ValidateCVV checks the security code is 3 or 4 digits.
func ValidateCVV(cvv string) error {
	cvv = strings.TrimSpace(cvv)
	if (len(cvv) != 3 && len(cvv) != 4) || !isDigits(cvv) {
		return dErrors.New(dErrors.CodeValidation, "cvv must be 3 or 4 digits")
	}
	return nil
}

// NormalizeHolderName trims and collapses inner whitespace.
func NormalizeHolderName(name string) string {
	return strings.Join(strings.FieldsFunc(name, unicode.IsSpace), " ")
}

// ValidateHolderName requires at least three characters after trimming.
func ValidateHolderName(name string) error {
	if utf8.RuneCountInString(NormalizeHolderName(name)) < minHolderNameRune {
		return dErrors.New(dErrors.CodeValidation, "cardHolderName must have at least 3 characters")
	}
	return nil
}
