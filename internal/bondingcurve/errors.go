package bondingcurve

import "errors"

// Engine failures are synchronous and typed. None of them is retryable by
// re-submitting the same request against the same state; callers match them
// with errors.Is.
var (
	// ErrInvalidAmount is returned for zero, negative, fractional or
	// out-of-range trade amounts, and for trades too small to move the curve.
	ErrInvalidAmount = errors.New("bondingcurve: invalid trade amount")

	// ErrInvalidSlippage is returned when the slippage tolerance exceeds 10000 bps.
	ErrInvalidSlippage = errors.New("bondingcurve: slippage tolerance must be within [0, 10000] bps")

	// ErrInvalidState is returned when a reserve snapshot cannot be priced.
	ErrInvalidState = errors.New("bondingcurve: invalid reserve state")

	// ErrInvalidParams is returned by NewCurve for inconsistent parameters.
	ErrInvalidParams = errors.New("bondingcurve: invalid curve parameters")

	// ErrAlreadyGraduated is returned for any quote or trade against a
	// curve that has moved to an external market.
	ErrAlreadyGraduated = errors.New("bondingcurve: curve already graduated")

	// ErrCannotGraduate is returned by Graduate below the threshold.
	ErrCannotGraduate = errors.New("bondingcurve: graduation threshold not reached")

	// ErrInsufficientLiquidity is returned when a buy would take more
	// tokens than the curve holds.
	ErrInsufficientLiquidity = errors.New("bondingcurve: insufficient liquidity in bonding curve")

	// ErrInsufficientReserves is returned when a sell cannot be paid out
	// from the curve's reserves.
	ErrInsufficientReserves = errors.New("bondingcurve: insufficient reserves")

	// ErrSlippageExceeded is returned when the freshly recomputed output is
	// below the caller's minimum.
	ErrSlippageExceeded = errors.New("bondingcurve: slippage tolerance exceeded")

	// ErrMaxBuyExceeded is returned when a buy is larger than MaxBuyLamports.
	ErrMaxBuyExceeded = errors.New("bondingcurve: maximum buy amount exceeded")

	// ErrMathOverflow is returned when a reserve would not fit in 64 bits.
	ErrMathOverflow = errors.New("bondingcurve: math overflow")
)
