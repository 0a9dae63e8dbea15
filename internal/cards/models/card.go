package models

import (
	"time"

	id "cardvault/pkg/domain"
)

// CreditCard is the persisted card record. The PAN and CVV are never stored;
// only the provider token, the last four digits and the owner-scoped fingerprint.
type CreditCard struct {
	ID          id.CardID
	UserID      id.UserID
	Token       string
	LastFour    string
	Issuer      Issuer
	Status      Status
	Reference   string // provider verification reference (RUV)
	Fingerprint string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Age reports how long ago the card was registered.
func (c *CreditCard) Age(now time.Time) time.Duration {
	return now.Sub(c.CreatedAt)
}

// NeedsRefresh reports whether a read should poll the provider before answering.
func (c *CreditCard) NeedsRefresh(now time.Time, grace time.Duration) bool {
	return c.Status == StatusPendingVerification && c.Age(now) >= grace
}

// Clone returns a copy safe to hand out of a store.
func (c *CreditCard) Clone() *CreditCard {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}

// ListFilter narrows List and Count. Nil fields match everything.
type ListFilter struct {
	UserID *id.UserID
	Status *Status
}

// Matches reports whether card satisfies the filter.
func (f ListFilter) Matches(card *CreditCard) bool {
	if f.UserID != nil && card.UserID != *f.UserID {
		return false
	}
	if f.Status != nil && card.Status != *f.Status {
		return false
	}
	return true
}

// StatusUpdate is the compare-and-set payload applied by the transition applier.
type StatusUpdate struct {
	From      Status
	To        Status
	Issuer    Issuer // empty keeps the stored issuer
	UpdatedAt time.Time
}
