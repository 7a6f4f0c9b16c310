package bondingcurve

import (
	"github.com/shopspring/decimal"
)

// ImpactSeverity buckets a price impact for display.
type ImpactSeverity string

const (
	SeverityNone     ImpactSeverity = "none"     // < 1%
	SeverityLow      ImpactSeverity = "low"      // 1-3%
	SeverityModerate ImpactSeverity = "moderate" // 3-5%
	SeverityHigh     ImpactSeverity = "high"     // 5-10%
	SeverityExtreme  ImpactSeverity = "extreme"  // >= 10%
)

var (
	impactLow      = decimal.NewFromInt(1)
	impactModerate = decimal.NewFromInt(3)
	impactHigh     = decimal.NewFromInt(5)
	impactExtreme  = decimal.NewFromInt(10)
)

// SeverityOf returns the severity band of a percentage impact.
func SeverityOf(impactPct decimal.Decimal) ImpactSeverity {
	switch {
	case impactPct.LessThan(impactLow):
		return SeverityNone
	case impactPct.LessThan(impactModerate):
		return SeverityLow
	case impactPct.LessThan(impactHigh):
		return SeverityModerate
	case impactPct.LessThan(impactExtreme):
		return SeverityHigh
	default:
		return SeverityExtreme
	}
}

// CurrentPrice returns the marginal price in lamports per token base unit:
//
//	price = virtualSolReserves / virtualTokenReserves
//
// A state without virtual token reserves has no price and returns zero.
func CurrentPrice(s ReserveState) decimal.Decimal {
	return ratio(u256(s.VirtualSolReserves), u256(s.VirtualTokenReserves), PriceScale)
}

// PriceInSol converts a lamports-per-base-unit price into SOL per whole token.
func (c *Curve) PriceInSol(price decimal.Decimal) decimal.Decimal {
	return price.Shift(c.params.TokenDecimals - c.params.SolDecimals)
}

// LamportsToSol converts a lamport amount into SOL for display.
func (c *Curve) LamportsToSol(lamports decimal.Decimal) decimal.Decimal {
	return lamports.Shift(-c.params.SolDecimals)
}

// CalculatePriceImpact returns the relative deviation, in percent, of the
// executed average price from the pre-trade marginal price:
//
//	executed = inputAmount / outputAmount
//	impact   = |executed - currentPrice| / currentPrice * 100
//
// Amounts are given in price orientation: SOL side first, token side
// second. For a buy that is (SOL in, tokens out); for a sell it is
// (SOL out, tokens in).
func CalculatePriceImpact(inputAmount, outputAmount uint64, currentPrice decimal.Decimal) (decimal.Decimal, error) {
	if inputAmount == 0 || outputAmount == 0 {
		return decimal.Zero, ErrInvalidAmount
	}
	if !currentPrice.IsPositive() {
		return decimal.Zero, ErrInvalidState
	}
	executed := decFromU64(inputAmount).DivRound(decFromU64(outputAmount), PriceScale)
	return executed.Sub(currentPrice).Abs().Mul(hundred).DivRound(currentPrice, ImpactScale), nil
}

// CalculateMarketCap returns totalSupply * currentPrice, in lamports when
// the price is in lamports per base unit.
func CalculateMarketCap(totalSupply uint64, currentPrice decimal.Decimal) decimal.Decimal {
	return decFromU64(totalSupply).Mul(currentPrice)
}

// MarketCap values the full token supply at the current price.
func MarketCap(s ReserveState) decimal.Decimal {
	return CalculateMarketCap(s.TotalSupply, CurrentPrice(s))
}

// CirculatingSupply is the number of tokens bought out of the curve.
func CirculatingSupply(s ReserveState) uint64 {
	if s.RealTokenReserves >= s.BondingCurveSupply {
		return 0
	}
	return s.BondingCurveSupply - s.RealTokenReserves
}

// CirculatingMarketCap values only the tokens that left the curve.
func CirculatingMarketCap(s ReserveState) decimal.Decimal {
	return CalculateMarketCap(CirculatingSupply(s), CurrentPrice(s))
}

// Progress describes how far a curve is from graduation.
type Progress struct {
	Percentage      decimal.Decimal `json:"percentage"`
	Remaining       uint64          `json:"remaining,string"`
	RealSolReserves uint64          `json:"real_sol_reserves,string"`
	Threshold       uint64          `json:"threshold,string"`
	IsGraduated     bool            `json:"is_graduated"`
}

// GraduationProgress returns
//
//	percentage = min(realSol / threshold * 100, 100)
//	remaining  = max(threshold - realSol, 0)
//
// A graduated curve always reports 100 and 0.
func GraduationProgress(s ReserveState) Progress {
	p := Progress{
		RealSolReserves: s.RealSolReserves,
		Threshold:       s.GraduationThreshold,
		IsGraduated:     s.IsGraduated,
	}
	if s.IsGraduated || s.GraduationThreshold == 0 || s.RealSolReserves >= s.GraduationThreshold {
		p.Percentage = hundred
		return p
	}
	p.Percentage = decFromU64(s.RealSolReserves).Mul(hundred).
		DivRound(decFromU64(s.GraduationThreshold), ImpactScale).Truncate(2)
	if p.Percentage.GreaterThan(hundred) {
		p.Percentage = hundred
	}
	p.Remaining = s.GraduationThreshold - s.RealSolReserves
	return p
}
