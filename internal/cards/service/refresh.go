package service

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"cardvault/internal/cards/models"
	"cardvault/internal/verification"
	"cardvault/pkg/requestcontext"
)

// RefreshOutcome reports whether an on-demand refresh changed the card.
type RefreshOutcome string

const (
	RefreshSkipped   RefreshOutcome = "skipped"
	RefreshUnchanged RefreshOutcome = "unchanged"
	RefreshChanged   RefreshOutcome = "changed"
)

// Refresh polls the provider for a pending card older than the grace period,
// for at most MaxWait. The poll runs on its own goroutine under a context
// detached from ctx, so a disconnecting client never aborts it halfway; ctx
// only bounds how long this caller waits for the answer. Concurrent refreshes
// of one card share a single poll.
func (s *Service) Refresh(ctx context.Context, card *models.CreditCard) RefreshOutcome {
	if !card.NeedsRefresh(s.now(), s.refresh.MinAge) {
		return RefreshSkipped
	}

	contact := requestcontext.UserContact(ctx)
	detached := context.WithoutCancel(ctx)
	ch := s.flights.DoChan(card.ID.String(), func() (any, error) {
		return s.poll(detached, card, contact), nil
	})

	select {
	case res := <-ch:
		return res.Val.(RefreshOutcome)
	case <-ctx.Done():
		return RefreshUnchanged
	}
}

func (s *Service) poll(parent context.Context, card *models.CreditCard, contact requestcontext.Contact) RefreshOutcome {
	start := time.Now()
	deadline := start.Add(s.refresh.MaxWait)
	ctx, cancel := context.WithDeadline(parent, deadline)
	defer cancel()

	ctx, span := s.tracer.Start(ctx, "cards.refresh")
	defer span.End()
	span.SetAttributes(attribute.String("card.id", card.ID.String()))

	outcome, attempts := s.pollUntilFinal(ctx, card, contact, deadline)
	span.SetAttributes(
		attribute.String("refresh.outcome", string(outcome)),
		attribute.Int("refresh.attempts", attempts),
	)
	s.metrics.ObserveRefresh(string(outcome), start)
	return outcome
}

func (s *Service) pollUntilFinal(ctx context.Context, card *models.CreditCard, contact requestcontext.Contact, deadline time.Time) (RefreshOutcome, int) {
	backoff := s.refresh.BackoffInitial
	for attempt := 1; ; attempt++ {
		result := s.provider.GetStatus(ctx, card.Reference)

		switch result.Code {
		case verification.CodeFinal:
			outcome, err := s.Apply(ctx, card, result.Status, ApplyOptions{
				Issuer:  result.Issuer,
				Source:  SourceRefresh,
				Contact: contact,
			})
			if err != nil {
				s.logger.ErrorContext(ctx, "failed to apply refreshed status",
					"card_id", card.ID.String(), "reference", card.Reference, "error", err)
				return RefreshUnchanged, attempt
			}
			if outcome == OutcomeTransitioned {
				return RefreshChanged, attempt
			}
			return RefreshUnchanged, attempt

		case verification.CodePending:
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return RefreshUnchanged, attempt
			}
			timer := time.NewTimer(min(backoff, remaining))
			select {
			case <-ctx.Done():
				timer.Stop()
				return RefreshUnchanged, attempt
			case <-timer.C:
			}
			backoff = min(backoff+s.refresh.BackoffStep, s.refresh.BackoffMax)

		default:
			s.logger.WarnContext(ctx, "refresh stopped on provider answer",
				"card_id", card.ID.String(),
				"reference", card.Reference,
				"code", string(result.Code),
			)
			return RefreshUnchanged, attempt
		}
	}
}
