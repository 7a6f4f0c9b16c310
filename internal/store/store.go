// Package store defines the persistence interface for the curve engine.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing).
package store

import (
	"context"
	"errors"
	"sort"

	"github.com/atmx/curve-engine/internal/bondingcurve"
	"github.com/atmx/curve-engine/internal/model"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrDuplicate     = errors.New("store: already exists")
	ErrStateConflict = errors.New("store: reserve state changed concurrently")
)

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer.
type Store interface {
	// --- Token operations ---

	// CreateToken persists a new token at version 1. Returns ErrDuplicate
	// when the id or mint is taken.
	CreateToken(ctx context.Context, token *model.Token) error

	// GetToken retrieves a token by its ID.
	GetToken(ctx context.Context, id string) (*model.Token, error)

	// GetTokenByMint retrieves a token by its mint address.
	GetTokenByMint(ctx context.Context, mint string) (*model.Token, error)

	// ListTokens returns all tokens, newest first.
	ListTokens(ctx context.Context) ([]model.Token, error)

	// UpdateReserves replaces the reserve state if the stored version still
	// equals expectedVersion and returns the token at its new version.
	// GraduatedAt is set the first time the stored state becomes graduated.
	UpdateReserves(ctx context.Context, id string, expectedVersion int64, state bondingcurve.ReserveState) (*model.Token, error)

	// --- Immutable ledger ---

	// InsertTrade appends an immutable trade record.
	InsertTrade(ctx context.Context, trade *model.Trade) error

	// RecordTrade applies UpdateReserves and InsertTrade atomically.
	RecordTrade(ctx context.Context, expectedVersion int64, state bondingcurve.ReserveState, trade *model.Trade) (*model.Token, error)

	// GetTradesByToken returns all trades for a token, oldest first.
	GetTradesByToken(ctx context.Context, tokenID string) ([]model.Trade, error)

	// GetTradesByUser returns all trades for a user, oldest first.
	GetTradesByUser(ctx context.Context, userID string) ([]model.Trade, error)

	// --- Derived views ---

	// GetUserHoldings aggregates the user's ledger per token. Value and PnL
	// are left zero; marking to market needs live reserves.
	GetUserHoldings(ctx context.Context, userID string) ([]model.Holding, error)

	// GetFeeTotals sums the fees a token's trades accrued.
	GetFeeTotals(ctx context.Context, tokenID string) (model.FeeTotals, error)
}

// aggregateHoldings folds a user's trades into per-token holdings sorted by
// token ID. Sells never exceed the balance, so Balance cannot underflow for
// a ledger written through the trading service.
func aggregateHoldings(userID string, trades []model.Trade) []model.Holding {
	byToken := make(map[string]*model.Holding)
	for _, t := range trades {
		if t.UserID != userID {
			continue
		}
		h, ok := byToken[t.TokenID]
		if !ok {
			h = &model.Holding{UserID: userID, TokenID: t.TokenID}
			byToken[t.TokenID] = h
		}
		credit, debit := t.TokenDelta()
		h.Balance = h.Balance + credit - debit
		if t.Side == bondingcurve.SideBuy {
			h.SolSpent += t.AmountIn
		} else {
			h.SolReceived += t.AmountOut
		}
	}

	holdings := make([]model.Holding, 0, len(byToken))
	for _, h := range byToken {
		holdings = append(holdings, *h)
	}
	sort.Slice(holdings, func(i, j int) bool { return holdings[i].TokenID < holdings[j].TokenID })
	return holdings
}

// FindHolding returns the user's holding in tokenID, or a zero holding.
func FindHolding(holdings []model.Holding, tokenID string) model.Holding {
	for _, h := range holdings {
		if h.TokenID == tokenID {
			return h
		}
	}
	return model.Holding{TokenID: tokenID}
}
