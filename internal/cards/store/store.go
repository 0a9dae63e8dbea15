// Package store persists card records.
//
// Every backend honours the same contract:
//   - Create fails with sentinel.ErrConflict when the reference or fingerprint already exists
//   - Find* return sentinel.ErrNotFound for missing records
//   - CompareAndSetStatus applies only while the stored status equals update.From
//     and reports false, without error, when another writer got there first
package store

import (
	"time"

	"cardvault/internal/cards/models"
)

// laterOf keeps updated_at monotonic across writers with skewed clocks.
func laterOf(prev, next time.Time) time.Time {
	if next.Before(prev) {
		return prev
	}
	return next
}

func applyUpdate(card *models.CreditCard, update models.StatusUpdate) {
	card.Status = update.To
	if update.Issuer != "" {
		card.Issuer = update.Issuer
	}
	card.UpdatedAt = laterOf(card.UpdatedAt, update.UpdatedAt)
}
