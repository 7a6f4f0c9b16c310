package store

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atmx/curve-engine/internal/bondingcurve"
	"github.com/atmx/curve-engine/internal/model"
)

func newToken(t *testing.T) *model.Token {
	t.Helper()
	c, err := bondingcurve.NewCurve(bondingcurve.DefaultParams())
	require.NoError(t, err)
	id := uuid.NewString()
	return &model.Token{
		ID:        id,
		Mint:      "mint-" + id,
		Name:      "Test",
		Symbol:    "TST",
		Creator:   "creator-1",
		Reserves:  c.NewState(),
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
}

func newTrade(tokenID, userID string, side bondingcurve.Side, in, out uint64) *model.Trade {
	return &model.Trade{
		ID:           uuid.NewString(),
		TokenID:      tokenID,
		UserID:       userID,
		Side:         side,
		AmountIn:     in,
		AmountOut:    out,
		PlatformFee:  in / 100,
		CreatorFee:   in / 100,
		Price:        decimal.RequireFromString("0.000000028"),
		AveragePrice: decimal.RequireFromString("0.000000027"),
		PriceImpact:  decimal.RequireFromString("1.5"),
		Timestamp:    time.Now().UTC().Truncate(time.Microsecond),
	}
}

// runStoreSuite exercises the behaviour every Store implementation shares.
func runStoreSuite(t *testing.T, s Store) {
	ctx := context.Background()

	t.Run("create and get", func(t *testing.T) {
		tok := newToken(t)
		require.NoError(t, s.CreateToken(ctx, tok))
		assert.Equal(t, int64(1), tok.Version)

		got, err := s.GetToken(ctx, tok.ID)
		require.NoError(t, err)
		assert.Equal(t, tok.Mint, got.Mint)
		assert.Equal(t, tok.Reserves, got.Reserves)
		assert.Nil(t, got.GraduatedAt)

		byMint, err := s.GetTokenByMint(ctx, tok.Mint)
		require.NoError(t, err)
		assert.Equal(t, tok.ID, byMint.ID)

		assert.ErrorIs(t, s.CreateToken(ctx, tok), ErrDuplicate)
	})

	t.Run("not found", func(t *testing.T) {
		_, err := s.GetToken(ctx, uuid.NewString())
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = s.GetTokenByMint(ctx, "nope")
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = s.UpdateReserves(ctx, uuid.NewString(), 1, bondingcurve.ReserveState{})
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = s.GetFeeTotals(ctx, uuid.NewString())
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("compare and swap", func(t *testing.T) {
		tok := newToken(t)
		require.NoError(t, s.CreateToken(ctx, tok))

		next := tok.Reserves
		next.RealSolReserves = 1_000
		updated, err := s.UpdateReserves(ctx, tok.ID, 1, next)
		require.NoError(t, err)
		assert.Equal(t, int64(2), updated.Version)
		assert.Equal(t, uint64(1_000), updated.Reserves.RealSolReserves)

		_, err = s.UpdateReserves(ctx, tok.ID, 1, next)
		assert.ErrorIs(t, err, ErrStateConflict)

		got, err := s.GetToken(ctx, tok.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(2), got.Version)
	})

	t.Run("graduated at is set once", func(t *testing.T) {
		tok := newToken(t)
		require.NoError(t, s.CreateToken(ctx, tok))

		grad := tok.Reserves
		grad.IsGraduated = true
		first, err := s.UpdateReserves(ctx, tok.ID, 1, grad)
		require.NoError(t, err)
		require.NotNil(t, first.GraduatedAt)

		second, err := s.UpdateReserves(ctx, tok.ID, 2, grad)
		require.NoError(t, err)
		require.NotNil(t, second.GraduatedAt)
		assert.True(t, first.GraduatedAt.Equal(*second.GraduatedAt))
	})

	t.Run("record trade and holdings", func(t *testing.T) {
		tok := newToken(t)
		require.NoError(t, s.CreateToken(ctx, tok))
		user := "user-" + uuid.NewString()

		state := tok.Reserves
		state.RealSolReserves = 980
		buy := newTrade(tok.ID, user, bondingcurve.SideBuy, 1_000, 5_000)
		sell := newTrade(tok.ID, user, bondingcurve.SideSell, 2_000, 300)
		sell.Timestamp = buy.Timestamp.Add(time.Second)
		_, err := s.RecordTrade(ctx, 1, state, buy)
		require.NoError(t, err)
		_, err = s.RecordTrade(ctx, 2, state, sell)
		require.NoError(t, err)

		// Stale version: neither the reserves nor the ledger change.
		_, err = s.RecordTrade(ctx, 1, state, newTrade(tok.ID, user, bondingcurve.SideBuy, 1, 1))
		assert.ErrorIs(t, err, ErrStateConflict)

		trades, err := s.GetTradesByToken(ctx, tok.ID)
		require.NoError(t, err)
		assert.Len(t, trades, 2)

		byUser, err := s.GetTradesByUser(ctx, user)
		require.NoError(t, err)
		require.Len(t, byUser, 2)
		assert.Equal(t, bondingcurve.SideBuy, byUser[0].Side)

		holdings, err := s.GetUserHoldings(ctx, user)
		require.NoError(t, err)
		require.Len(t, holdings, 1)
		h := holdings[0]
		assert.Equal(t, uint64(3_000), h.Balance)
		assert.Equal(t, uint64(1_000), h.SolSpent)
		assert.Equal(t, uint64(300), h.SolReceived)

		fees, err := s.GetFeeTotals(ctx, tok.ID)
		require.NoError(t, err)
		assert.Equal(t, uint64(30), fees.PlatformFee)
		assert.Equal(t, uint64(30), fees.CreatorFee)
		assert.Equal(t, int64(2), fees.TradeCount)
	})

	t.Run("concurrent writers", func(t *testing.T) {
		tok := newToken(t)
		require.NoError(t, s.CreateToken(ctx, tok))

		var wins atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := s.UpdateReserves(ctx, tok.ID, 1, tok.Reserves); err == nil {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), wins.Load())
	})
}

func TestMemoryStore(t *testing.T) {
	runStoreSuite(t, NewMemoryStore())
}

func TestMemoryStore_CopiesOnRead(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	tok := newToken(t)
	require.NoError(t, s.CreateToken(ctx, tok))

	got, err := s.GetToken(ctx, tok.ID)
	require.NoError(t, err)
	got.Reserves.RealSolReserves = 42

	again, err := s.GetToken(ctx, tok.ID)
	require.NoError(t, err)
	assert.Zero(t, again.Reserves.RealSolReserves)
}

func TestMemoryStore_ListTokensNewestFirst(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	older := newToken(t)
	older.CreatedAt = time.Now().Add(-time.Hour)
	newer := newToken(t)
	require.NoError(t, s.CreateToken(ctx, older))
	require.NoError(t, s.CreateToken(ctx, newer))

	tokens, err := s.ListTokens(ctx)
	require.NoError(t, err)
	require.Len(t, tokens, 2)
	assert.Equal(t, newer.ID, tokens[0].ID)
}

func TestAggregateHoldings(t *testing.T) {
	trades := []model.Trade{
		*newTrade("b", "u1", bondingcurve.SideBuy, 100, 1_000),
		*newTrade("a", "u1", bondingcurve.SideBuy, 50, 400),
		*newTrade("b", "u1", bondingcurve.SideSell, 1_000, 90),
		*newTrade("a", "u2", bondingcurve.SideBuy, 10, 10),
	}
	holdings := aggregateHoldings("u1", trades)
	require.Len(t, holdings, 2)
	assert.Equal(t, "a", holdings[0].TokenID)
	assert.Equal(t, uint64(400), holdings[0].Balance)
	assert.Equal(t, "b", holdings[1].TokenID)
	assert.Zero(t, holdings[1].Balance)
	assert.Equal(t, uint64(90), holdings[1].SolReceived)

	assert.Equal(t, uint64(400), FindHolding(holdings, "a").Balance)
	assert.Zero(t, FindHolding(holdings, "missing").Balance)
}
