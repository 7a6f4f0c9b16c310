// Package bondingcurve implements the constant-product bonding curve that
// prices an agent token against SOL until the token graduates to a DEX.
//
// The engine is a set of pure functions over an explicit ReserveState value.
// It performs no I/O and holds no locks; the Reserve Store that persists the
// state is responsible for serialising writes per token.
//
// Reserve arithmetic is exact: products of two reserves are carried in
// 256-bit integers (holiman/uint256) and every division rounds in the curve's
// favour. Prices and percentages are shopspring/decimal values derived from
// exact integer ratios, never float64.
package bondingcurve

import (
	"fmt"

	"github.com/shopspring/decimal"
)

const (
	// LamportsPerSol is the number of lamports in one SOL.
	LamportsPerSol uint64 = 1_000_000_000

	// TokenUnit is one whole token at 9 decimals.
	TokenUnit uint64 = 1_000_000_000

	// PriceScale is the number of decimal places kept for prices, enough to
	// express lamport-per-base-unit prices well below 1e-12.
	PriceScale int32 = 24

	// ImpactScale is the number of decimal places kept for percentages.
	ImpactScale int32 = 8
)

// Params configures a curve. Fee and reserve seeds are configuration, not
// constants of the engine.
type Params struct {
	PlatformFeeBps uint64
	CreatorFeeBps  uint64

	InitialVirtualSol    uint64
	InitialVirtualTokens uint64
	InitialRealTokens    uint64
	TotalSupply          uint64
	GraduationThreshold  uint64

	// Display only; the integer math ignores decimals.
	TokenDecimals int32
	SolDecimals   int32

	// ImpactWarningPct is the price impact (percent) above which a quote
	// carries a warning.
	ImpactWarningPct decimal.Decimal

	// MaxBuyLamports caps the gross SOL of a single buy. Zero disables the cap.
	MaxBuyLamports uint64
}

// DefaultParams returns the pump.fun style launch parameters: 30 SOL and
// 1.073B tokens of virtual reserves, 800M of 1B tokens on the curve,
// graduation at 30,000 SOL, 1% platform and 1% creator fee.
func DefaultParams() Params {
	return Params{
		PlatformFeeBps:       100,
		CreatorFeeBps:        100,
		InitialVirtualSol:    30 * LamportsPerSol,
		InitialVirtualTokens: 1_073_000_000 * TokenUnit,
		InitialRealTokens:    800_000_000 * TokenUnit,
		TotalSupply:          1_000_000_000 * TokenUnit,
		GraduationThreshold:  30_000 * LamportsPerSol,
		TokenDecimals:        9,
		SolDecimals:          9,
		ImpactWarningPct:     decimal.NewFromInt(5),
	}
}

// TotalFeeBps returns the combined platform and creator fee.
func (p Params) TotalFeeBps() uint64 {
	return p.PlatformFeeBps + p.CreatorFeeBps
}

// Validate checks the parameters for internal consistency.
func (p Params) Validate() error {
	switch {
	case p.TotalFeeBps() >= BpsDenominator:
		return fmt.Errorf("%w: total fee %d bps must be below %d", ErrInvalidParams, p.TotalFeeBps(), BpsDenominator)
	case p.InitialVirtualSol == 0 || p.InitialVirtualTokens == 0:
		return fmt.Errorf("%w: virtual reserves must be positive", ErrInvalidParams)
	case p.InitialRealTokens == 0 || p.InitialRealTokens > p.InitialVirtualTokens:
		return fmt.Errorf("%w: real token reserves must be in (0, virtual token reserves]", ErrInvalidParams)
	case p.InitialRealTokens > p.TotalSupply:
		return fmt.Errorf("%w: curve allocation exceeds total supply", ErrInvalidParams)
	case p.GraduationThreshold == 0:
		return fmt.Errorf("%w: graduation threshold must be positive", ErrInvalidParams)
	case p.TokenDecimals < 0 || p.SolDecimals < 0:
		return fmt.Errorf("%w: decimals must not be negative", ErrInvalidParams)
	case p.ImpactWarningPct.IsNegative():
		return fmt.Errorf("%w: impact warning threshold must not be negative", ErrInvalidParams)
	}
	return nil
}

// Curve prices trades for every token launched with the same parameters.
// It is immutable and safe for concurrent use.
type Curve struct {
	params Params
}

// NewCurve validates p and returns a curve.
func NewCurve(p Params) (*Curve, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &Curve{params: p}, nil
}

// Params returns the curve configuration.
func (c *Curve) Params() Params {
	return c.params
}

// NewState returns the reserve state of a freshly issued token.
func (c *Curve) NewState() ReserveState {
	return ReserveState{
		VirtualSolReserves:   c.params.InitialVirtualSol,
		VirtualTokenReserves: c.params.InitialVirtualTokens,
		RealSolReserves:      0,
		RealTokenReserves:    c.params.InitialRealTokens,
		GraduationThreshold:  c.params.GraduationThreshold,
		BondingCurveSupply:   c.params.InitialRealTokens,
		TotalSupply:          c.params.TotalSupply,
	}
}
