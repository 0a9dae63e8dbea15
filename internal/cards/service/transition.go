package service

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"cardvault/internal/cards/models"
	"cardvault/internal/events"
	"cardvault/internal/notification"
	dErrors "cardvault/pkg/domain-errors"
	"cardvault/pkg/requestcontext"
)

// Outcome is the result of applying a provider verdict to a card.
type Outcome string

const (
	OutcomeUnchanged    Outcome = "unchanged"
	OutcomeRejected     Outcome = "rejected"
	OutcomeTransitioned Outcome = "transitioned"
)

// Transition sources, used for logs, metrics and events.
const (
	SourceRefresh  = "refresh"
	SourcePoller   = "poller"
	SourceOverride = "override"
)

// ApplyOptions carries what the caller learned alongside the new status.
type ApplyOptions struct {
	Issuer  models.Issuer // provider-reported issuer; only fills an UNKNOWN one
	Source  string
	Contact requestcontext.Contact // recipient of the approved/rejected email
}

// Apply moves card to status when the state machine allows it.
//
//   - same status: Unchanged
//   - card terminal with a different status: Rejected, logged as an invariant violation
//   - otherwise a compare-and-set from the card's current status; if another
//     writer won, the fresh record is re-evaluated, which can only yield
//     Unchanged or Rejected, so side effects fire at most once per transition
func (s *Service) Apply(ctx context.Context, card *models.CreditCard, status models.Status, opts ApplyOptions) (Outcome, error) {
	ctx, span := s.tracer.Start(ctx, "cards.apply_transition")
	defer span.End()
	span.SetAttributes(
		attribute.String("card.id", card.ID.String()),
		attribute.String("card.status.to", string(status)),
		attribute.String("transition.source", opts.Source),
	)

	if !status.IsValid() {
		return "", dErrors.New(dErrors.CodeValidation, "invalid status")
	}

	current := card
	// Two passes: the CAS attempt and, after a miss, the re-evaluation of the winner's write.
	for attempt := 0; attempt < 2; attempt++ {
		if current.Status == status {
			return OutcomeUnchanged, nil
		}
		if current.Status.IsTerminal() {
			s.metrics.IncrementInvariantViolation()
			s.logger.ErrorContext(ctx, "invariant violation: transition from terminal status",
				"card_id", current.ID.String(),
				"reference", current.Reference,
				"from", string(current.Status),
				"to", string(status),
				"source", opts.Source,
			)
			return OutcomeRejected, nil
		}
		if !current.Status.CanTransitionTo(status) {
			return "", dErrors.New(dErrors.CodeInvariantViolation, "transition not allowed")
		}

		update := models.StatusUpdate{
			From:      current.Status,
			To:        status,
			UpdatedAt: s.now().UTC(),
		}
		if current.Issuer == models.IssuerUnknown && opts.Issuer.IsValid() && opts.Issuer != models.IssuerUnknown {
			update.Issuer = opts.Issuer
		}

		applied, err := s.cards.CompareAndSetStatus(ctx, current.ID, update)
		if err != nil {
			return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to update card status")
		}
		if applied {
			s.afterTransition(ctx, current, update, opts)
			return OutcomeTransitioned, nil
		}

		s.logger.InfoContext(ctx, "concurrent status update detected, re-evaluating",
			"card_id", current.ID.String(), "source", opts.Source)
		fresh, err := s.cards.FindByID(ctx, current.ID)
		if err != nil {
			return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to reload card")
		}
		current = fresh
	}
	return "", dErrors.New(dErrors.CodeConflict, "card status kept changing")
}

func (s *Service) afterTransition(ctx context.Context, card *models.CreditCard, update models.StatusUpdate, opts ApplyOptions) {
	issuer := card.Issuer
	if update.Issuer != "" {
		issuer = update.Issuer
	}
	s.metrics.IncrementTransition(string(update.To), opts.Source)
	s.logger.InfoContext(ctx, "card status transitioned",
		"card_id", card.ID.String(),
		"reference", card.Reference,
		"from", string(update.From),
		"to", string(update.To),
		"source", opts.Source,
	)

	kind := notification.KindApproved
	if update.To == models.StatusRejected {
		kind = notification.KindRejected
	}
	s.notifier.Notify(ctx, kind, notification.CardNotice{
		To:        opts.Contact.Email,
		FullName:  opts.Contact.FullName,
		Reference: card.Reference,
		LastFour:  card.LastFour,
		Issuer:    string(issuer),
		At:        update.UpdatedAt,
	})

	s.events.Publish(ctx, events.Event{
		Type:           events.TypeCardStatusChanged,
		CardID:         card.ID.String(),
		UserID:         card.UserID.String(),
		Reference:      card.Reference,
		Issuer:         string(issuer),
		Status:         string(update.To),
		PreviousStatus: string(update.From),
		Source:         opts.Source,
		OccurredAt:     update.UpdatedAt,
	})
}
