package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/atmx/curve-engine/internal/bondingcurve"
	"github.com/atmx/curve-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Writes go to the primary store and invalidate the cache; reads
// check Redis first then fall back to the primary.
//
// Only tokens and holdings are cached. The trading path re-reads a token
// after every conflict, so a stale cached version costs one extra retry
// at most.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) CreateToken(ctx context.Context, t *model.Token) error {
	if err := s.primary.CreateToken(ctx, t); err != nil {
		return err
	}
	s.cacheToken(ctx, t)
	return nil
}

func (s *CachedStore) UpdateReserves(ctx context.Context, id string, expectedVersion int64, state bondingcurve.ReserveState) (*model.Token, error) {
	t, err := s.primary.UpdateReserves(ctx, id, expectedVersion, state)
	if err != nil {
		// A conflict means our cached copy may be the stale one.
		s.rdb.Del(ctx, tokenKey(id))
		return nil, err
	}
	s.cacheToken(ctx, t)
	return t, nil
}

func (s *CachedStore) InsertTrade(ctx context.Context, trade *model.Trade) error {
	if err := s.primary.InsertTrade(ctx, trade); err != nil {
		return err
	}
	s.rdb.Del(ctx, holdingsKey(trade.UserID))
	return nil
}

func (s *CachedStore) RecordTrade(ctx context.Context, expectedVersion int64, state bondingcurve.ReserveState, trade *model.Trade) (*model.Token, error) {
	t, err := s.primary.RecordTrade(ctx, expectedVersion, state, trade)
	if err != nil {
		s.rdb.Del(ctx, tokenKey(trade.TokenID))
		return nil, err
	}
	s.rdb.Del(ctx, holdingsKey(trade.UserID))
	s.cacheToken(ctx, t)
	return t, nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetToken(ctx context.Context, id string) (*model.Token, error) {
	data, err := s.rdb.Get(ctx, tokenKey(id)).Bytes()
	if err == nil {
		var t model.Token
		if json.Unmarshal(data, &t) == nil {
			return &t, nil
		}
	}

	// Cache miss: read from primary.
	t, err := s.primary.GetToken(ctx, id)
	if err != nil {
		return nil, err
	}

	s.cacheToken(ctx, t)
	return t, nil
}

func (s *CachedStore) GetTokenByMint(ctx context.Context, mint string) (*model.Token, error) {
	// The mint -> ID mapping never changes once created.
	id, err := s.rdb.Get(ctx, mintKey(mint)).Result()
	if err == nil {
		return s.GetToken(ctx, id)
	}

	t, err := s.primary.GetTokenByMint(ctx, mint)
	if err != nil {
		return nil, err
	}
	s.cacheToken(ctx, t)
	return t, nil
}

func (s *CachedStore) GetUserHoldings(ctx context.Context, userID string) ([]model.Holding, error) {
	data, err := s.rdb.Get(ctx, holdingsKey(userID)).Bytes()
	if err == nil {
		var holdings []model.Holding
		if json.Unmarshal(data, &holdings) == nil {
			return holdings, nil
		}
	}

	holdings, err := s.primary.GetUserHoldings(ctx, userID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(holdings); err == nil {
		s.rdb.Set(ctx, holdingsKey(userID), data, s.ttl)
	}
	return holdings, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListTokens(ctx context.Context) ([]model.Token, error) {
	return s.primary.ListTokens(ctx)
}

func (s *CachedStore) GetTradesByToken(ctx context.Context, tokenID string) ([]model.Trade, error) {
	return s.primary.GetTradesByToken(ctx, tokenID)
}

func (s *CachedStore) GetTradesByUser(ctx context.Context, userID string) ([]model.Trade, error) {
	return s.primary.GetTradesByUser(ctx, userID)
}

func (s *CachedStore) GetFeeTotals(ctx context.Context, tokenID string) (model.FeeTotals, error) {
	return s.primary.GetFeeTotals(ctx, tokenID)
}

// --- Cache helpers ---

func (s *CachedStore) cacheToken(ctx context.Context, t *model.Token) {
	if data, err := json.Marshal(t); err == nil {
		s.rdb.Set(ctx, tokenKey(t.ID), data, s.ttl)
		s.rdb.Set(ctx, mintKey(t.Mint), t.ID, s.ttl)
	}
}

func tokenKey(id string) string     { return fmt.Sprintf("token:%s", id) }
func mintKey(mint string) string    { return fmt.Sprintf("mint:%s", mint) }
func holdingsKey(uid string) string { return fmt.Sprintf("holdings:%s", uid) }
