// Package limits enforces per-wallet holding caps on curve buys.
//
// A wallet may hold at most MaxWalletBps basis points of a token's total
// supply. The check runs on the priced quote, before reserves are written,
// so a rejected buy leaves no trace.
package limits

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
)

// ErrWalletLimitExceeded is returned when a buy would push one wallet's
// balance beyond its share of the total supply.
var ErrWalletLimitExceeded = errors.New("limits: wallet holding limit exceeded")

const bpsDenominator = 10_000

// HoldingLimiter caps a single wallet's share of the total supply.
type HoldingLimiter struct {
	// MaxWalletBps is the largest share of TotalSupply one wallet may hold,
	// in basis points. Zero disables the check.
	MaxWalletBps uint64
}

// NewHoldingLimiter creates a limiter; bps above 10000 are clamped.
func NewHoldingLimiter(maxWalletBps uint64) *HoldingLimiter {
	if maxWalletBps > bpsDenominator {
		maxWalletBps = bpsDenominator
	}
	return &HoldingLimiter{MaxWalletBps: maxWalletBps}
}

// Enabled reports whether the limiter rejects anything.
func (l *HoldingLimiter) Enabled() bool {
	return l != nil && l.MaxWalletBps > 0
}

// CheckBuy validates that balance + tokensOut stays within the cap:
//
//	(balance + tokensOut) * 10000 <= totalSupply * MaxWalletBps
//
// Computed on 256-bit intermediates so no input can overflow.
func (l *HoldingLimiter) CheckBuy(balance, tokensOut, totalSupply uint64) error {
	if !l.Enabled() {
		return nil
	}

	after := new(uint256.Int).Add(uint256.NewInt(balance), uint256.NewInt(tokensOut))
	held := new(uint256.Int).Mul(after, uint256.NewInt(bpsDenominator))
	allowed := new(uint256.Int).Mul(uint256.NewInt(totalSupply), uint256.NewInt(l.MaxWalletBps))

	if held.Gt(allowed) {
		return fmt.Errorf("%w: %s of %d base units exceeds %d bps",
			ErrWalletLimitExceeded, after.Dec(), totalSupply, l.MaxWalletBps)
	}
	return nil
}

// MaxBuyable returns how many more base units a wallet holding balance may
// acquire, or totalSupply when the limiter is disabled.
func (l *HoldingLimiter) MaxBuyable(balance, totalSupply uint64) uint64 {
	if !l.Enabled() {
		return totalSupply
	}
	capUnits := new(uint256.Int).Mul(uint256.NewInt(totalSupply), uint256.NewInt(l.MaxWalletBps))
	capUnits.Div(capUnits, uint256.NewInt(bpsDenominator))
	c := capUnits.Uint64()
	if balance >= c {
		return 0
	}
	return c - balance
}
