package bondingcurve

import (
	"math/big"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// BpsDenominator is the basis-point scale used for fees and slippage.
const BpsDenominator = 10000

var (
	u256BpsDenom = uint256.NewInt(BpsDenominator)
	u256One      = uint256.NewInt(1)
	hundred      = decimal.NewFromInt(100)
)

func u256(x uint64) *uint256.Int {
	return uint256.NewInt(x)
}

// bpsOf returns floor(amount * bps / 10000).
func bpsOf(amount, bps uint64) uint64 {
	r := new(uint256.Int).Mul(u256(amount), u256(bps))
	return r.Div(r, u256BpsDenom).Uint64()
}

// ceilDiv returns ceil(x / y). y must be non-zero.
func ceilDiv(x, y *uint256.Int) *uint256.Int {
	q := new(uint256.Int).Div(x, y)
	if !new(uint256.Int).Mod(x, y).IsZero() {
		q.Add(q, u256One)
	}
	return q
}

// product returns a * b without overflow (at most 128 bits).
func product(a, b uint64) *uint256.Int {
	return new(uint256.Int).Mul(u256(a), u256(b))
}

// checkedAdd adds two reserves, failing when the result leaves uint64.
func checkedAdd(a, b uint64) (uint64, error) {
	s := new(uint256.Int).Add(u256(a), u256(b))
	if !s.IsUint64() {
		return 0, ErrMathOverflow
	}
	return s.Uint64(), nil
}

func decFromU64(x uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(x), 0)
}

func decFromU256(x *uint256.Int) decimal.Decimal {
	return decimal.NewFromBigInt(x.ToBig(), 0)
}

// ratio returns num / den rounded to places decimal places.
func ratio(num, den *uint256.Int, places int32) decimal.Decimal {
	if den.IsZero() {
		return decimal.Zero
	}
	return decFromU256(num).DivRound(decFromU256(den), places)
}
