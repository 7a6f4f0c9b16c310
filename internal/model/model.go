// Package model defines the persisted domain types of the curve engine.
// Reserve and trade amounts are integer base units (lamports, token base
// units); derived prices use shopspring/decimal, never float64.
package model

import (
	"time"

	"github.com/atmx/curve-engine/internal/bondingcurve"
	"github.com/shopspring/decimal"
)

// Token is a launched token together with its bonding-curve reserves.
// Version increments on every reserve update and guards concurrent writers.
type Token struct {
	ID          string                    `json:"id" db:"id"`
	Mint        string                    `json:"mint" db:"mint"`
	Name        string                    `json:"name" db:"name"`
	Symbol      string                    `json:"symbol" db:"symbol"`
	Description string                    `json:"description" db:"description"`
	Creator     string                    `json:"creator" db:"creator"`
	Reserves    bondingcurve.ReserveState `json:"reserves"`
	Version     int64                     `json:"version" db:"version"`
	CreatedAt   time.Time                 `json:"created_at" db:"created_at"`
	GraduatedAt *time.Time                `json:"graduated_at,omitempty" db:"graduated_at"`
}

// Trade is an immutable ledger entry. Once inserted it is never modified.
// For buys AmountIn is gross lamports and AmountOut tokens; for sells
// AmountIn is tokens and AmountOut the lamports paid out after fees.
type Trade struct {
	ID           string            `json:"id" db:"id"`
	TokenID      string            `json:"token_id" db:"token_id"`
	UserID       string            `json:"user_id" db:"user_id"`
	Side         bondingcurve.Side `json:"side" db:"side"`
	AmountIn     uint64            `json:"amount_in,string" db:"amount_in"`
	AmountOut    uint64            `json:"amount_out,string" db:"amount_out"`
	PlatformFee  uint64            `json:"platform_fee,string" db:"platform_fee"`
	CreatorFee   uint64            `json:"creator_fee,string" db:"creator_fee"`
	Price        decimal.Decimal   `json:"price" db:"price"` // spot price after the trade
	AveragePrice decimal.Decimal   `json:"average_price" db:"average_price"`
	PriceImpact  decimal.Decimal   `json:"price_impact" db:"price_impact"`
	Timestamp    time.Time         `json:"timestamp" db:"timestamp"`
}

// TokenDelta returns the tokens credited to and debited from the trader.
func (t Trade) TokenDelta() (in, out uint64) {
	if t.Side == bondingcurve.SideBuy {
		return t.AmountOut, 0
	}
	return 0, t.AmountIn
}

// Holding is a trader's aggregate position in one token, derived from the
// ledger.
type Holding struct {
	UserID      string          `json:"user_id"`
	TokenID     string          `json:"token_id"`
	Balance     uint64          `json:"balance,string"`      // token base units
	SolSpent    uint64          `json:"sol_spent,string"`    // gross lamports paid on buys
	SolReceived uint64          `json:"sol_received,string"` // net lamports received on sells
	Value       decimal.Decimal `json:"value"`               // balance * spot price, lamports
	PnL         decimal.Decimal `json:"pnl"`                 // value + received - spent
	// MaxBuyable is how many more base units the wallet may buy under the
	// holding cap; nil when no cap applies.
	MaxBuyable *decimal.Decimal `json:"max_buyable,omitempty"`
}

// Portfolio aggregates all holdings for a user.
type Portfolio struct {
	UserID           string          `json:"user_id"`
	Holdings         []Holding       `json:"holdings"`
	TotalValue       decimal.Decimal `json:"total_value"`
	TotalSolSpent    uint64          `json:"total_sol_spent,string"`
	TotalSolReceived uint64          `json:"total_sol_received,string"`
	TotalPnL         decimal.Decimal `json:"total_pnl"`
}

// FeeTotals is the cumulative fee accrual of one token.
type FeeTotals struct {
	TokenID     string `json:"token_id"`
	PlatformFee uint64 `json:"platform_fee,string"`
	CreatorFee  uint64 `json:"creator_fee,string"`
	TradeCount  int64  `json:"trade_count"`
}
