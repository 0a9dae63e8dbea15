package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"cardvault/internal/cards/models"
	id "cardvault/pkg/domain"
	"cardvault/pkg/platform/sentinel"
)

// InMemoryStore keeps cards in process memory. The mutex makes
// CompareAndSetStatus atomic per record.
type InMemoryStore struct {
	mu            sync.RWMutex
	cards         map[id.CardID]*models.CreditCard
	byReference   map[string]id.CardID
	byFingerprint map[string]id.CardID
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		cards:         make(map[id.CardID]*models.CreditCard),
		byReference:   make(map[string]id.CardID),
		byFingerprint: make(map[string]id.CardID),
	}
}

func (s *InMemoryStore) Create(_ context.Context, card *models.CreditCard) error {
	if card == nil {
		return fmt.Errorf("card is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.cards[card.ID]; ok {
		return fmt.Errorf("card %s: %w", card.ID, sentinel.ErrConflict)
	}
	if _, ok := s.byReference[card.Reference]; ok {
		return fmt.Errorf("reference already registered: %w", sentinel.ErrConflict)
	}
	if _, ok := s.byFingerprint[card.Fingerprint]; ok {
		return fmt.Errorf("fingerprint already registered: %w", sentinel.ErrConflict)
	}

	s.cards[card.ID] = card.Clone()
	s.byReference[card.Reference] = card.ID
	s.byFingerprint[card.Fingerprint] = card.ID
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, cardID id.CardID) (*models.CreditCard, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	card, ok := s.cards[cardID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return card.Clone(), nil
}

func (s *InMemoryStore) FindByReference(_ context.Context, reference string) (*models.CreditCard, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cardID, ok := s.byReference[reference]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return s.cards[cardID].Clone(), nil
}

func (s *InMemoryStore) FindByFingerprint(_ context.Context, fingerprint string) (*models.CreditCard, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cardID, ok := s.byFingerprint[fingerprint]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return s.cards[cardID].Clone(), nil
}

// List returns matching cards oldest first.
func (s *InMemoryStore) List(_ context.Context, filter models.ListFilter) ([]*models.CreditCard, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.CreditCard, 0)
	for _, card := range s.cards {
		if filter.Matches(card) {
			out = append(out, card.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *InMemoryStore) Count(_ context.Context, filter models.ListFilter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, card := range s.cards {
		if filter.Matches(card) {
			n++
		}
	}
	return n, nil
}

func (s *InMemoryStore) CompareAndSetStatus(_ context.Context, cardID id.CardID, update models.StatusUpdate) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	card, ok := s.cards[cardID]
	if !ok {
		return false, sentinel.ErrNotFound
	}
	if card.Status != update.From {
		return false, nil
	}
	applyUpdate(card, update)
	return true, nil
}

// Ping always succeeds; it lets the health check treat every backend alike.
func (s *InMemoryStore) Ping(context.Context) error { return nil }
