// Package domain holds typed identifiers shared across packages.
package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "cardvault/pkg/domain-errors"
)

// UserID identifies a card owner as known to the users service.
type UserID uuid.UUID

// CardID identifies a registered card.
type CardID uuid.UUID

func (id UserID) String() string { return uuid.UUID(id).String() }
func (id UserID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

func (id CardID) String() string { return uuid.UUID(id).String() }
func (id CardID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

// NewCardID returns a random card identifier.
func NewCardID() CardID {
	return CardID(uuid.New())
}

// ParseUserID parses a non-nil UUID user identifier.
func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID(s, "user id")
	return UserID(u), err
}

// ParseCardID parses a non-nil UUID card identifier.
func ParseCardID(s string) (CardID, error) {
	u, err := parseUUID(s, "card id")
	return CardID(u), err
}

func parseUUID(s, label string) (uuid.UUID, error) {
	if strings.TrimSpace(s) == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeValidation, label+" is required")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeValidation, "invalid "+label)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeValidation, label+" cannot be nil")
	}
	return u, nil
}
