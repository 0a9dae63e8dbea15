package service

//go:generate mockgen -source=ports.go -destination=mocks/mocks.go -package=mocks CardStore,Provider,Enqueuer,Notifier,EventPublisher

import (
	"context"

	"cardvault/internal/cards/models"
	"cardvault/internal/events"
	"cardvault/internal/notification"
	"cardvault/internal/verification"
	id "cardvault/pkg/domain"
)

// CardStore persists card records. See internal/cards/store for the contract.
type CardStore interface {
	Create(ctx context.Context, card *models.CreditCard) error
	FindByID(ctx context.Context, cardID id.CardID) (*models.CreditCard, error)
	FindByReference(ctx context.Context, reference string) (*models.CreditCard, error)
	FindByFingerprint(ctx context.Context, fingerprint string) (*models.CreditCard, error)
	List(ctx context.Context, filter models.ListFilter) ([]*models.CreditCard, error)
	Count(ctx context.Context, filter models.ListFilter) (int, error)
	CompareAndSetStatus(ctx context.Context, cardID id.CardID, update models.StatusUpdate) (bool, error)
}

// Provider is the verification provider. GetStatus never fails; transport
// problems come back as verification.CodeUnexpected.
type Provider interface {
	Register(ctx context.Context, card verification.Card) (verification.Registration, error)
	GetStatus(ctx context.Context, reference string) verification.StatusResult
}

// Enqueuer hands verification checks to the background poller.
type Enqueuer interface {
	Enqueue(ctx context.Context, body []byte) error
}

// Notifier sends card emails. Implementations swallow failures.
type Notifier interface {
	Notify(ctx context.Context, kind notification.Kind, notice notification.CardNotice)
}

// EventPublisher emits lifecycle events. Implementations swallow failures.
type EventPublisher interface {
	Publish(ctx context.Context, event events.Event)
}
