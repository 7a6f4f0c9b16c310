package bondingcurve

import (
	"fmt"

	"github.com/holiman/uint256"
)

// ReserveState is the per-token curve snapshot owned by the Reserve Store.
// It is passed and returned by value; the engine never mutates a caller's copy.
type ReserveState struct {
	VirtualSolReserves   uint64 `json:"virtual_sol_reserves,string"`
	VirtualTokenReserves uint64 `json:"virtual_token_reserves,string"`
	RealSolReserves      uint64 `json:"real_sol_reserves,string"`
	RealTokenReserves    uint64 `json:"real_token_reserves,string"`
	IsGraduated          bool   `json:"is_graduated"`
	GraduationThreshold  uint64 `json:"graduation_threshold,string"`
	BondingCurveSupply   uint64 `json:"bonding_curve_supply,string"`
	TotalSupply          uint64 `json:"total_supply,string"`
}

// K returns the constant product virtualSol * virtualToken.
func (s ReserveState) K() *uint256.Int {
	return product(s.VirtualSolReserves, s.VirtualTokenReserves)
}

// Validate reports whether s can be priced. A zero BondingCurveSupply is
// left for the curve to fill from its parameters.
func (s ReserveState) Validate() error {
	if s.VirtualSolReserves == 0 || s.VirtualTokenReserves == 0 {
		return fmt.Errorf("%w: virtual reserves must be positive", ErrInvalidState)
	}
	if s.GraduationThreshold == 0 {
		return fmt.Errorf("%w: graduation threshold must be positive", ErrInvalidState)
	}
	if s.BondingCurveSupply != 0 && s.RealTokenReserves > s.BondingCurveSupply {
		return fmt.Errorf("%w: real token reserves %d exceed curve supply %d",
			ErrInvalidState, s.RealTokenReserves, s.BondingCurveSupply)
	}
	return nil
}

// CanGraduate reports whether the real SOL reserves reached the threshold
// on a curve that has not graduated yet.
func (s ReserveState) CanGraduate() bool {
	return !s.IsGraduated && s.RealSolReserves >= s.GraduationThreshold
}

// withGraduation flips the one-way graduation flag once the threshold is met.
func (s ReserveState) withGraduation() ReserveState {
	if s.CanGraduate() {
		s.IsGraduated = true
	}
	return s
}
