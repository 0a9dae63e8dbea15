package models

import (
	"strconv"
	"strings"
)

// Issuer is the card network detected from the number prefix.
type Issuer string

const (
	IssuerVisa       Issuer = "VISA"
	IssuerMastercard Issuer = "MASTERCARD"
	IssuerAmex       Issuer = "AMEX"
	IssuerDiscover   Issuer = "DISCOVER"
	IssuerDiners     Issuer = "DINERS_CLUB"
	IssuerUnknown    Issuer = "UNKNOWN"
)

func (i Issuer) String() string { return string(i) }

func (i Issuer) IsValid() bool {
	switch i {
	case IssuerVisa, IssuerMastercard, IssuerAmex, IssuerDiscover, IssuerDiners, IssuerUnknown:
		return true
	}
	return false
}

// issuerAliases maps provider spellings onto issuers.
var issuerAliases = map[string]Issuer{
	"VISA":             IssuerVisa,
	"MASTERCARD":       IssuerMastercard,
	"MASTER CARD":      IssuerMastercard,
	"AMEX":             IssuerAmex,
	"AMERICAN EXPRESS": IssuerAmex,
	"AMERICAN_EXPRESS": IssuerAmex,
	"DISCOVER":         IssuerDiscover,
	"DINERS":           IssuerDiners,
	"DINERS CLUB":      IssuerDiners,
	"DINERS_CLUB":      IssuerDiners,
}

// ParseIssuer maps a provider-reported issuer. ok is false for unknown or empty values.
func ParseIssuer(s string) (Issuer, bool) {
	issuer, ok := issuerAliases[strings.ToUpper(strings.TrimSpace(s))]
	return issuer, ok
}

// DetectIssuer classifies a normalized card number by prefix. First matching rule wins.
func DetectIssuer(number string) Issuer {
	switch {
	case strings.HasPrefix(number, "4"):
		return IssuerVisa
	case prefixIn(number, 2, 51, 55),
		len(number) == 16 && prefixIn(number, 4, 2221, 2720):
		return IssuerMastercard
	case prefixIn(number, 2, 34, 34), prefixIn(number, 2, 37, 37):
		return IssuerAmex
	case strings.HasPrefix(number, "6011"),
		prefixIn(number, 3, 644, 649),
		strings.HasPrefix(number, "65"):
		return IssuerDiscover
	case prefixIn(number, 2, 36, 36), prefixIn(number, 2, 38, 38),
		prefixIn(number, 3, 300, 305):
		return IssuerDiners
	default:
		return IssuerUnknown
	}
}

// prefixIn reports whether the first n digits of number, read as an integer, fall in [lo, hi].
func prefixIn(number string, n, lo, hi int) bool {
	if len(number) < n {
		return false
	}
	v, err := strconv.Atoi(number[:n])
	if err != nil {
		return false
	}
	return v >= lo && v <= hi
}
