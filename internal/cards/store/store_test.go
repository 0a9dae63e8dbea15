package store_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stretchr/testify/suite"

	"cardvault/internal/cards/models"
	id "cardvault/pkg/domain"
	"cardvault/pkg/platform/sentinel"
)

// CardStore is the contract every backend is checked against.
type CardStore interface {
	Create(ctx context.Context, card *models.CreditCard) error
	FindByID(ctx context.Context, cardID id.CardID) (*models.CreditCard, error)
	FindByReference(ctx context.Context, reference string) (*models.CreditCard, error)
	FindByFingerprint(ctx context.Context, fingerprint string) (*models.CreditCard, error)
	List(ctx context.Context, filter models.ListFilter) ([]*models.CreditCard, error)
	Count(ctx context.Context, filter models.ListFilter) (int, error)
	CompareAndSetStatus(ctx context.Context, cardID id.CardID, update models.StatusUpdate) (bool, error)
}

// contractSuite is embedded by each backend suite; newStore must return an empty store.
type contractSuite struct {
	suite.Suite
	newStore func() CardStore
	store    CardStore
	ctx      context.Context
	seq      atomic.Int64
}

func (s *contractSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = s.newStore()
}

func (s *contractSuite) newCard(owner id.UserID) *models.CreditCard {
	n := s.seq.Add(1)
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC).Add(time.Duration(n) * time.Second)
	cardID := id.NewCardID()
	return &models.CreditCard{
		ID:          cardID,
		UserID:      owner,
		Token:       "tok-" + cardID.String(),
		LastFour:    "1111",
		Issuer:      models.IssuerVisa,
		Status:      models.StatusPendingVerification,
		Reference:   "RUV-" + cardID.String(),
		Fingerprint: "fp-" + cardID.String(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func newOwner() id.UserID {
	return id.UserID(id.NewCardID())
}

func (s *contractSuite) TestCreateAndFind() {
	card := s.newCard(newOwner())
	s.Require().NoError(s.store.Create(s.ctx, card))

	byID, err := s.store.FindByID(s.ctx, card.ID)
	s.Require().NoError(err)
	s.Equal(card.Reference, byID.Reference)
	s.Equal(card.UserID, byID.UserID)
	s.True(card.CreatedAt.Equal(byID.CreatedAt))

	byRef, err := s.store.FindByReference(s.ctx, card.Reference)
	s.Require().NoError(err)
	s.Equal(card.ID, byRef.ID)

	byFP, err := s.store.FindByFingerprint(s.ctx, card.Fingerprint)
	s.Require().NoError(err)
	s.Equal(card.ID, byFP.ID)
}

func (s *contractSuite) TestFindMissing() {
	_, err := s.store.FindByID(s.ctx, id.NewCardID())
	s.ErrorIs(err, sentinel.ErrNotFound)
	_, err = s.store.FindByReference(s.ctx, "missing")
	s.ErrorIs(err, sentinel.ErrNotFound)
	_, err = s.store.FindByFingerprint(s.ctx, "missing")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *contractSuite) TestCreateRejectsDuplicates() {
	owner := newOwner()
	card := s.newCard(owner)
	s.Require().NoError(s.store.Create(s.ctx, card))

	s.Run("same fingerprint", func() {
		dup := s.newCard(owner)
		dup.Fingerprint = card.Fingerprint
		s.ErrorIs(s.store.Create(s.ctx, dup), sentinel.ErrConflict)
	})
	s.Run("same reference", func() {
		dup := s.newCard(owner)
		dup.Reference = card.Reference
		s.ErrorIs(s.store.Create(s.ctx, dup), sentinel.ErrConflict)
	})

	count, err := s.store.Count(s.ctx, models.ListFilter{})
	s.Require().NoError(err)
	s.Equal(1, count)
}

func (s *contractSuite) TestConcurrentDuplicateCreate() {
	owner := newOwner()
	template := s.newCard(owner)
	const goroutines = 20

	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		conflicts atomic.Int32
	)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			card := *template
			card.ID = id.NewCardID()
			card.Reference = "RUV-" + card.ID.String()
			err := s.store.Create(s.ctx, &card)
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, sentinel.ErrConflict):
				conflicts.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), successes.Load())
	s.Equal(int32(goroutines-1), conflicts.Load())
}

func (s *contractSuite) TestListAndCountFilters() {
	alice, bob := newOwner(), newOwner()
	a1 := s.newCard(alice)
	a2 := s.newCard(alice)
	b1 := s.newCard(bob)
	for _, c := range []*models.CreditCard{a1, a2, b1} {
		s.Require().NoError(s.store.Create(s.ctx, c))
	}
	_, err := s.store.CompareAndSetStatus(s.ctx, a2.ID, models.StatusUpdate{
		From: models.StatusPendingVerification, To: models.StatusApproved, UpdatedAt: a2.UpdatedAt,
	})
	s.Require().NoError(err)

	list, err := s.store.List(s.ctx, models.ListFilter{UserID: &alice})
	s.Require().NoError(err)
	s.Require().Len(list, 2)
	s.Equal(a1.ID, list[0].ID, "oldest first")

	approved := models.StatusApproved
	list, err = s.store.List(s.ctx, models.ListFilter{UserID: &alice, Status: &approved})
	s.Require().NoError(err)
	s.Require().Len(list, 1)
	s.Equal(a2.ID, list[0].ID)

	n, err := s.store.Count(s.ctx, models.ListFilter{})
	s.Require().NoError(err)
	s.Equal(3, n)

	pending := models.StatusPendingVerification
	n, err = s.store.Count(s.ctx, models.ListFilter{Status: &pending})
	s.Require().NoError(err)
	s.Equal(2, n)

	n, err = s.store.Count(s.ctx, models.ListFilter{UserID: &bob})
	s.Require().NoError(err)
	s.Equal(1, n)
}

func (s *contractSuite) TestCompareAndSetStatus() {
	card := s.newCard(newOwner())
	card.Issuer = models.IssuerUnknown
	s.Require().NoError(s.store.Create(s.ctx, card))

	s.Run("applies from the expected status", func() {
		later := card.UpdatedAt.Add(time.Minute)
		ok, err := s.store.CompareAndSetStatus(s.ctx, card.ID, models.StatusUpdate{
			From:      models.StatusPendingVerification,
			To:        models.StatusApproved,
			Issuer:    models.IssuerMastercard,
			UpdatedAt: later,
		})
		s.Require().NoError(err)
		s.True(ok)

		got, err := s.store.FindByID(s.ctx, card.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusApproved, got.Status)
		s.Equal(models.IssuerMastercard, got.Issuer)
		s.True(later.Equal(got.UpdatedAt))
	})

	s.Run("misses once the status moved", func() {
		ok, err := s.store.CompareAndSetStatus(s.ctx, card.ID, models.StatusUpdate{
			From:      models.StatusPendingVerification,
			To:        models.StatusRejected,
			UpdatedAt: card.UpdatedAt.Add(2 * time.Minute),
		})
		s.Require().NoError(err)
		s.False(ok)

		got, err := s.store.FindByID(s.ctx, card.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusApproved, got.Status)
	})

	s.Run("missing card", func() {
		_, err := s.store.CompareAndSetStatus(s.ctx, id.NewCardID(), models.StatusUpdate{
			From: models.StatusPendingVerification, To: models.StatusApproved, UpdatedAt: time.Now(),
		})
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *contractSuite) TestCompareAndSetKeepsUpdatedAtMonotonic() {
	card := s.newCard(newOwner())
	s.Require().NoError(s.store.Create(s.ctx, card))

	ok, err := s.store.CompareAndSetStatus(s.ctx, card.ID, models.StatusUpdate{
		From:      models.StatusPendingVerification,
		To:        models.StatusRejected,
		UpdatedAt: card.UpdatedAt.Add(-time.Hour),
	})
	s.Require().NoError(err)
	s.True(ok)

	got, err := s.store.FindByID(s.ctx, card.ID)
	s.Require().NoError(err)
	s.True(card.UpdatedAt.Equal(got.UpdatedAt))
	s.Equal(card.Issuer, got.Issuer, "empty issuer keeps the stored one")
}

func (s *contractSuite) TestConcurrentCompareAndSetSingleWinner() {
	card := s.newCard(newOwner())
	s.Require().NoError(s.store.Create(s.ctx, card))

	const goroutines = 10
	var (
		wg   sync.WaitGroup
		wins atomic.Int32
	)
	for i := 0; i < goroutines; i++ {
		to := models.StatusApproved
		if i%2 == 1 {
			to = models.StatusRejected
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.store.CompareAndSetStatus(s.ctx, card.ID, models.StatusUpdate{
				From: models.StatusPendingVerification, To: to, UpdatedAt: time.Now(),
			})
			if err == nil && ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	s.Equal(int32(1), wins.Load())
}
