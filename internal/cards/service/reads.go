package service

import (
	"context"
	"errors"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"cardvault/internal/cards/models"
	"cardvault/internal/verification"
	id "cardvault/pkg/domain"
	dErrors "cardvault/pkg/domain-errors"
	"cardvault/pkg/platform/sentinel"
)

// maxParallelRefresh caps concurrent provider polls from one list request.
const maxParallelRefresh = 8

// Get returns the owner's card, refreshing it first when it is due.
// Cards owned by someone else read as not found.
func (s *Service) Get(ctx context.Context, owner id.UserID, cardID id.CardID) (*models.CreditCard, error) {
	card, err := s.cards.FindByID(ctx, cardID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "card not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load card")
	}
	if card.UserID != owner {
		return nil, dErrors.New(dErrors.CodeNotFound, "card not found")
	}

	if s.Refresh(ctx, card) != RefreshChanged {
		return card, nil
	}
	fresh, err := s.cards.FindByID(ctx, cardID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to reload card")
	}
	return fresh, nil
}

// List returns the owner's cards, optionally filtered by status. Due pending
// cards are refreshed concurrently first; the list is re-read if any changed.
func (s *Service) List(ctx context.Context, owner id.UserID, status *models.Status) ([]*models.CreditCard, error) {
	filter := models.ListFilter{UserID: &owner, Status: status}
	cards, err := s.cards.List(ctx, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list cards")
	}

	// A terminal filter hides the pending cards that could still move into it.
	due := cards
	if status != nil && status.IsTerminal() {
		pending := models.StatusPendingVerification
		if due, err = s.cards.List(ctx, models.ListFilter{UserID: &owner, Status: &pending}); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list cards")
		}
	}

	if !s.refreshAll(ctx, due) {
		return cards, nil
	}
	if cards, err = s.cards.List(ctx, filter); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list cards")
	}
	return cards, nil
}

// refreshAll refreshes every due card and reports whether any changed.
func (s *Service) refreshAll(ctx context.Context, cards []*models.CreditCard) bool {
	var changed atomic.Bool
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelRefresh)
	for _, card := range cards {
		if !card.NeedsRefresh(s.now(), s.refresh.MinAge) {
			continue
		}
		g.Go(func() error {
			if s.Refresh(gctx, card) == RefreshChanged {
				changed.Store(true)
			}
			return nil
		})
	}
	_ = g.Wait()
	return changed.Load()
}

// Count counts cards across all owners; filter fields are optional.
func (s *Service) Count(ctx context.Context, filter models.ListFilter) (int, error) {
	n, err := s.cards.Count(ctx, filter)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count cards")
	}
	return n, nil
}

// Override applies an operator or webhook verdict by provider reference.
// rawStatus is read through the provider vocabulary.
func (s *Service) Override(ctx context.Context, reference, rawStatus string) (*models.CreditCard, error) {
	status, ok := verification.MapStatus(rawStatus)
	if !ok {
		return nil, dErrors.New(dErrors.CodeValidation, "unknown status")
	}

	card, err := s.cards.FindByReference(ctx, reference)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "card not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load card")
	}

	outcome, err := s.Apply(ctx, card, status, ApplyOptions{Source: SourceOverride})
	if err != nil {
		return nil, err
	}
	if outcome == OutcomeRejected {
		return nil, dErrors.New(dErrors.CodeConflict, "card already has a final status")
	}
	if outcome == OutcomeUnchanged {
		return card, nil
	}

	fresh, err := s.cards.FindByID(ctx, card.ID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to reload card")
	}
	return fresh, nil
}
