// Package email holds address helpers shared by notification senders.
package email

import (
	"net/mail"
	"strings"
	"unicode"
)

// GreetingName picks the name used to address a recipient: the trimmed full
// name when present, otherwise one derived from the address local part.
// It returns "" when neither yields anything usable.
func GreetingName(fullName, address string) string {
	if name := strings.Join(strings.Fields(fullName), " "); name != "" {
		return name
	}
	if address == "" {
		return ""
	}
	first, last := DeriveNameFromEmail(address)
	if last == "" {
		return first
	}
	return first + " " + last
}

// DeriveNameFromEmail splits "ada.lovelace@x" into ("Ada", "Lovelace").
// A single-part local name yields an empty last name.
func DeriveNameFromEmail(address string) (string, string) {
	localPart := address
	if at := strings.IndexByte(address, '@'); at > 0 {
		localPart = address[:at]
	}

	parts := strings.FieldsFunc(localPart, func(r rune) bool {
		return r == '.' || r == '_' || r == '-' || r == '+' || unicode.IsDigit(r)
	})
	if len(parts) == 0 {
		return "", ""
	}

	first := capitalize(parts[0])
	if len(parts) == 1 {
		return first, ""
	}
	return first, capitalize(parts[len(parts)-1])
}

// IsValidAddress reports whether s parses as a bare RFC 5322 address.
func IsValidAddress(s string) bool {
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == strings.TrimSpace(s)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(strings.ToLower(s))
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
