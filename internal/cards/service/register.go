package service

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"cardvault/internal/cards/models"
	"cardvault/internal/events"
	"cardvault/internal/notification"
	"cardvault/internal/verification"
	id "cardvault/pkg/domain"
	dErrors "cardvault/pkg/domain-errors"
	"cardvault/pkg/platform/sentinel"
)

// RegisterCommand is a registration request plus the caller's identity.
type RegisterCommand struct {
	UserID   id.UserID
	Email    string
	FullName string
	Card     models.RegisterCardRequest
}

// Register validates a card, submits it to the provider and persists it as
// PENDING_VERIFICATION. The provider call always precedes persistence, and
// nothing after persistence can fail the registration.
func (s *Service) Register(ctx context.Context, cmd RegisterCommand) (*models.CreditCard, error) {
	ctx, span := s.tracer.Start(ctx, "cards.register")
	defer span.End()

	card, err := s.register(ctx, cmd)
	if err != nil {
		s.metrics.IncrementRegistration(string(dErrors.GetCode(err)))
		span.SetStatus(codes.Error, string(dErrors.GetCode(err)))
		return nil, err
	}
	s.metrics.IncrementRegistration("created")
	span.SetAttributes(attribute.String("card.id", card.ID.String()))
	return card, nil
}

func (s *Service) register(ctx context.Context, cmd RegisterCommand) (*models.CreditCard, error) {
	if cmd.UserID.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "user is required")
	}

	req := cmd.Card
	req.Normalize()
	now := s.now().UTC()
	exp, err := req.Validate(now)
	if err != nil {
		return nil, err
	}

	if s.fingerprintKey == nil {
		s.logger.ErrorContext(ctx, "card fingerprint pepper is not configured")
		return nil, dErrors.New(dErrors.CodeConfiguration, "card fingerprinting is not configured")
	}
	fp := fingerprint(s.fingerprintKey, cmd.UserID, req.CardNumber)

	if _, err := s.cards.FindByFingerprint(ctx, fp); err == nil {
		return nil, dErrors.New(dErrors.CodeDuplicate, "card already registered")
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check card registry")
	}

	reg, err := s.provider.Register(ctx, verification.Card{
		Number:     req.CardNumber,
		CVV:        req.CVV,
		Expiration: exp.Wire(),
		HolderName: req.CardHolderName,
	})
	if err != nil {
		return nil, s.mapRegisterError(ctx, err)
	}

	issuer := models.DetectIssuer(req.CardNumber)
	if issuer == models.IssuerUnknown {
		if reported, ok := models.ParseIssuer(reg.Issuer); ok {
			issuer = reported
		}
	}

	card := &models.CreditCard{
		ID:          s.newID(),
		UserID:      cmd.UserID,
		Token:       reg.Token,
		LastFour:    models.LastFour(req.CardNumber),
		Issuer:      issuer,
		Status:      models.StatusPendingVerification,
		Reference:   reg.Reference,
		Fingerprint: fp,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.cards.Create(ctx, card); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeDuplicate, "card already registered")
		}
		// The provider already holds this verification; keep the reference for reconciliation by hand.
		s.logger.ErrorContext(ctx, "failed to persist provider-accepted card",
			"reference", reg.Reference,
			"user_id", cmd.UserID.String(),
			"error", err,
		)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save card")
	}

	s.logger.InfoContext(ctx, "card registered",
		"card_id", card.ID.String(),
		"reference", card.Reference,
		"issuer", string(card.Issuer),
	)
	s.afterRegister(ctx, card, cmd)
	return card, nil
}

// afterRegister runs the best-effort side effects: enqueue, then event, with
// the submitted email sent in the background.
func (s *Service) afterRegister(ctx context.Context, card *models.CreditCard, cmd RegisterCommand) {
	body, err := models.VerificationCheck{
		Reference:  card.Reference,
		CardID:     card.ID.String(),
		UserID:     card.UserID.String(),
		Email:      cmd.Email,
		FullName:   cmd.FullName,
		EnqueuedAt: card.CreatedAt,
	}.Encode()
	if err == nil {
		err = s.queue.Enqueue(ctx, body)
	}
	if err != nil {
		s.logger.WarnContext(ctx, "failed to enqueue verification check",
			"card_id", card.ID.String(), "reference", card.Reference, "error", err)
	}

	// SMTP can take seconds; the email must not hold the 201.
	notice := notification.CardNotice{
		To:        cmd.Email,
		FullName:  cmd.FullName,
		Reference: card.Reference,
		LastFour:  card.LastFour,
		Issuer:    string(card.Issuer),
		At:        card.CreatedAt,
	}
	detached := context.WithoutCancel(ctx)
	s.background.Go(func() {
		s.notifier.Notify(detached, notification.KindSubmitted, notice)
	})

	s.events.Publish(ctx, events.Event{
		Type:       events.TypeCardRegistered,
		CardID:     card.ID.String(),
		UserID:     card.UserID.String(),
		Reference:  card.Reference,
		Issuer:     string(card.Issuer),
		Status:     string(card.Status),
		OccurredAt: card.CreatedAt,
	})
}

func (s *Service) mapRegisterError(ctx context.Context, err error) error {
	if errors.Is(err, verification.ErrNotConfigured) {
		s.logger.ErrorContext(ctx, "verification provider is not configured")
		return dErrors.New(dErrors.CodeConfiguration, "verification provider is not configured")
	}

	kind := verification.KindOf(err)
	s.logger.WarnContext(ctx, "provider rejected registration", "kind", string(kind), "error", err)
	switch kind {
	case verification.KindBadRequest:
		return dErrors.Wrap(err, dErrors.CodeValidation, "card rejected by verification provider")
	case verification.KindUnauthorized:
		return dErrors.Wrap(err, dErrors.CodeUnauthorized, "verification provider rejected credentials")
	case verification.KindForbidden:
		return dErrors.Wrap(err, dErrors.CodeForbidden, "verification provider denied the request")
	case verification.KindConflict:
		return dErrors.Wrap(err, dErrors.CodeDuplicate, "verification already in progress")
	default:
		return dErrors.Wrap(err, dErrors.CodeProvider, "verification provider unavailable")
	}
}
