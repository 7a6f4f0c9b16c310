package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/atmx/curve-engine/internal/bondingcurve"
	"github.com/atmx/curve-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu     sync.RWMutex
	tokens map[string]*model.Token
	mints  map[string]string // mint -> token ID
	trades []model.Trade
	now    func() time.Time
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tokens: make(map[string]*model.Token),
		mints:  make(map[string]string),
		now:    time.Now,
	}
}

// copyToken returns a deep copy so callers never alias stored state.
func copyToken(t *model.Token) *model.Token {
	c := *t
	if t.GraduatedAt != nil {
		at := *t.GraduatedAt
		c.GraduatedAt = &at
	}
	return &c
}

func (s *MemoryStore) CreateToken(_ context.Context, t *model.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tokens[t.ID]; ok {
		return fmt.Errorf("token %s: %w", t.ID, ErrDuplicate)
	}
	if _, ok := s.mints[t.Mint]; ok {
		return fmt.Errorf("mint %s: %w", t.Mint, ErrDuplicate)
	}

	stored := copyToken(t)
	if stored.Version == 0 {
		stored.Version = 1
	}
	s.tokens[t.ID] = stored
	s.mints[t.Mint] = t.ID
	t.Version = stored.Version
	return nil
}

func (s *MemoryStore) GetToken(_ context.Context, id string) (*model.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tokens[id]
	if !ok {
		return nil, fmt.Errorf("token %s: %w", id, ErrNotFound)
	}
	return copyToken(t), nil
}

func (s *MemoryStore) GetTokenByMint(_ context.Context, mint string) (*model.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.mints[mint]
	if !ok {
		return nil, fmt.Errorf("mint %s: %w", mint, ErrNotFound)
	}
	return copyToken(s.tokens[id]), nil
}

func (s *MemoryStore) ListTokens(_ context.Context) ([]model.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tokens := make([]model.Token, 0, len(s.tokens))
	for _, t := range s.tokens {
		tokens = append(tokens, *copyToken(t))
	}
	sort.Slice(tokens, func(i, j int) bool {
		if tokens[i].CreatedAt.Equal(tokens[j].CreatedAt) {
			return tokens[i].ID < tokens[j].ID
		}
		return tokens[i].CreatedAt.After(tokens[j].CreatedAt)
	})
	return tokens, nil
}

func (s *MemoryStore) UpdateReserves(_ context.Context, id string, expectedVersion int64, state bondingcurve.ReserveState) (*model.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.updateReservesLocked(id, expectedVersion, state)
}

func (s *MemoryStore) updateReservesLocked(id string, expectedVersion int64, state bondingcurve.ReserveState) (*model.Token, error) {
	t, ok := s.tokens[id]
	if !ok {
		return nil, fmt.Errorf("token %s: %w", id, ErrNotFound)
	}
	if t.Version != expectedVersion {
		return nil, fmt.Errorf("token %s at version %d, expected %d: %w", id, t.Version, expectedVersion, ErrStateConflict)
	}

	t.Reserves = state
	t.Version++
	if state.IsGraduated && t.GraduatedAt == nil {
		at := s.now().UTC()
		t.GraduatedAt = &at
	}
	return copyToken(t), nil
}

func (s *MemoryStore) InsertTrade(_ context.Context, trade *model.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.trades = append(s.trades, *trade)
	return nil
}

func (s *MemoryStore) RecordTrade(_ context.Context, expectedVersion int64, state bondingcurve.ReserveState, trade *model.Trade) (*model.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.updateReservesLocked(trade.TokenID, expectedVersion, state)
	if err != nil {
		return nil, err
	}
	s.trades = append(s.trades, *trade)
	return t, nil
}

func (s *MemoryStore) GetTradesByToken(_ context.Context, tokenID string) ([]model.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Trade
	for _, t := range s.trades {
		if t.TokenID == tokenID {
			result = append(result, t)
		}
	}
	return result, nil
}

func (s *MemoryStore) GetTradesByUser(_ context.Context, userID string) ([]model.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Trade
	for _, t := range s.trades {
		if t.UserID == userID {
			result = append(result, t)
		}
	}
	return result, nil
}

func (s *MemoryStore) GetUserHoldings(_ context.Context, userID string) ([]model.Holding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return aggregateHoldings(userID, s.trades), nil
}

func (s *MemoryStore) GetFeeTotals(_ context.Context, tokenID string) (model.FeeTotals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.tokens[tokenID]; !ok {
		return model.FeeTotals{}, fmt.Errorf("token %s: %w", tokenID, ErrNotFound)
	}
	totals := model.FeeTotals{TokenID: tokenID}
	for _, t := range s.trades {
		if t.TokenID != tokenID {
			continue
		}
		totals.PlatformFee += t.PlatformFee
		totals.CreatorFee += t.CreatorFee
		totals.TradeCount++
	}
	return totals, nil
}
