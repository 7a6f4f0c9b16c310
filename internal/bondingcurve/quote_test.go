package bondingcurve

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// assertConserved checks k_before <= k_after < k_before + bound, where the
// bound is the reserve that multiplied the rounded-up division.
func assertConserved(t *testing.T, before, after ReserveState) {
	t.Helper()
	kBefore := before.K()
	kAfter := after.K()
	assert.False(t, kAfter.Lt(kBefore), "k decreased: %s -> %s", kBefore.Dec(), kAfter.Dec())

	bound := after.VirtualSolReserves
	if after.VirtualSolReserves < before.VirtualSolReserves {
		bound = after.VirtualTokenReserves
	}
	limit := new(uint256.Int).Add(kBefore, uint256.NewInt(bound))
	assert.True(t, kAfter.Lt(limit), "k grew by more than one rounding unit")
}

func TestQuoteBuy_SeedScenario(t *testing.T) {
	c := newTestCurve(t)
	s := c.NewState()

	q, err := c.QuoteBuy(s, 1_000_000_000, 200)
	require.NoError(t, err)

	assert.Equal(t, SideBuy, q.Side)
	assert.Equal(t, uint64(20_000_000), q.Fees.Total)
	assert.Equal(t, uint64(10_000_000), q.Fees.Platform)
	assert.Equal(t, uint64(10_000_000), q.Fees.Creator)
	assert.Equal(t, uint64(980_000_000), q.NetAmountIn)
	assert.Equal(t, uint64(33_942_543_576_500_968), q.AmountOut)
	assert.Equal(t, uint64(33_263_692_704_970_948), q.MinimumReceived)
	assert.Less(t, q.AmountOut, s.RealTokenReserves)

	assert.True(t, q.NewPrice.GreaterThan(q.CurrentPrice))
	assert.True(t, q.PriceImpact.IsPositive())
	assert.True(t, q.ExecutionImpact.IsPositive())
	// 6.64% marginal impact is above the 5% warning threshold.
	assert.NotEmpty(t, q.Warning)
	assert.Equal(t, SeverityHigh, q.Severity)

	assert.Equal(t, s.VirtualSolReserves+980_000_000, q.NewState.VirtualSolReserves)
	assert.Equal(t, uint64(980_000_000), q.NewState.RealSolReserves)
	assertConserved(t, s, q.NewState)
}

// literalSeedState carries only the reserves, the flag and the threshold;
// supply fields are left for the curve parameters to fill.
func literalSeedState() ReserveState {
	return ReserveState{
		VirtualSolReserves:   30_000_000_000,
		VirtualTokenReserves: 1_073_000_000_000_000_000,
		RealSolReserves:      0,
		RealTokenReserves:    800_000_000_000_000_000,
		GraduationThreshold:  30_000 * LamportsPerSol,
	}
}

func TestQuoteBuy_LiteralSeedState(t *testing.T) {
	c := newTestCurve(t)
	s := literalSeedState()

	q, err := c.QuoteBuy(s, 1_000_000_000, 200)
	require.NoError(t, err)
	assert.Equal(t, uint64(20_000_000), q.Fees.Total)
	assert.Equal(t, uint64(980_000_000), q.NetAmountIn)
	assert.Equal(t, uint64(33_942_543_576_500_968), q.AmountOut)
	assert.Less(t, q.AmountOut, s.RealTokenReserves)
	assert.True(t, q.NewPrice.GreaterThan(q.CurrentPrice))
	assert.True(t, q.PriceImpact.IsPositive())

	// Selling everything back is bounded by the configured allocation.
	sq, err := c.QuoteSell(q.NewState, q.AmountOut, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(979_999_999), sq.GrossAmountOut)
	assert.Equal(t, s.RealTokenReserves, sq.NewState.RealTokenReserves)

	_, err = c.QuoteSell(q.NewState, q.AmountOut+1, 0)
	assert.ErrorIs(t, err, ErrInsufficientReserves)
}

func TestMinimumOut(t *testing.T) {
	assert.Equal(t, uint64(9_800), MinimumOut(10_000, 200))
	assert.Equal(t, uint64(10_000), MinimumOut(10_000, 0))
	assert.Equal(t, uint64(0), MinimumOut(10_000, 10_000))
	assert.Equal(t, uint64(0), MinimumOut(10_000, 10_001))
}

func TestQuoteBuy_DoesNotMutate(t *testing.T) {
	c := newTestCurve(t)
	s := c.NewState()
	orig := s

	_, err := c.QuoteBuy(s, 5_000_000_000, 100)
	require.NoError(t, err)
	assert.Equal(t, orig, s)
}

func TestQuoteBuy_Idempotent(t *testing.T) {
	c := newTestCurve(t)
	s := c.NewState()

	a, err := c.QuoteBuy(s, 2_500_000_000, 50)
	require.NoError(t, err)
	b, err := c.QuoteBuy(s, 2_500_000_000, 50)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestQuoteBuy_SmallTradeNoWarning(t *testing.T) {
	c := newTestCurve(t)
	q, err := c.QuoteBuy(c.NewState(), 10_000_000, 100) // 0.01 SOL
	require.NoError(t, err)
	assert.Empty(t, q.Warning)
	assert.Equal(t, SeverityNone, q.Severity)
}

func TestQuoteBuy_Rejections(t *testing.T) {
	c := newTestCurve(t)
	seed := c.NewState()
	graduated := seed
	graduated.IsGraduated = true
	noThreshold := seed
	noThreshold.GraduationThreshold = 0
	overAllocated := seed
	overAllocated.BondingCurveSupply = 0
	overAllocated.RealTokenReserves = DefaultParams().InitialRealTokens + 1

	tests := []struct {
		name     string
		state    ReserveState
		amount   uint64
		slippage uint64
		wantErr  error
	}{
		{"zero amount", seed, 0, 100, ErrInvalidAmount},
		{"graduated", graduated, 1_000_000_000, 100, ErrAlreadyGraduated},
		{"slippage above 100%", seed, 1_000_000_000, 10_001, ErrInvalidSlippage},
		{"no virtual reserves", ReserveState{}, 1_000_000_000, 100, ErrInvalidState},
		{"zero graduation threshold", noThreshold, 1_000_000_000, 100, ErrInvalidState},
		{"real tokens above the configured allocation", overAllocated, 1_000_000_000, 100, ErrInvalidState},
		{"drains the curve", seed, 100 * LamportsPerSol, 100, ErrInsufficientLiquidity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.QuoteBuy(tt.state, tt.amount, tt.slippage)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestQuoteBuy_MaxBuy(t *testing.T) {
	p := DefaultParams()
	p.MaxBuyLamports = LamportsPerSol
	c, err := NewCurve(p)
	require.NoError(t, err)

	_, err = c.QuoteBuy(c.NewState(), LamportsPerSol, 0)
	assert.NoError(t, err)
	_, err = c.QuoteBuy(c.NewState(), LamportsPerSol+1, 0)
	assert.ErrorIs(t, err, ErrMaxBuyExceeded)
}

func TestQuoteBuy_FeeBound(t *testing.T) {
	c := newTestCurve(t)
	for _, in := range []uint64{49, 50, 99, 12_345, 1_000_000_001, 7_777_777_777} {
		q, err := c.QuoteBuy(c.NewState(), in, 0)
		if err != nil {
			continue
		}
		assert.Equal(t, in*200/10000, q.Fees.Total, "amount %d", in)
		assert.Equal(t, q.Fees.Total, q.Fees.Platform+q.Fees.Creator)
		assert.Equal(t, in, q.NetAmountIn+q.Fees.Total)
	}
}

func TestQuoteBuy_ExecutionImpactMatchesAnalytics(t *testing.T) {
	c := newTestCurve(t)
	q, err := c.QuoteBuy(c.NewState(), 3*LamportsPerSol, 0)
	require.NoError(t, err)

	impact, err := CalculatePriceImpact(q.NetAmountIn, q.AmountOut, q.CurrentPrice)
	require.NoError(t, err)
	assert.True(t, impact.Equal(q.ExecutionImpact))
}

// boughtState returns a state after buying solIn lamports from the seed.
func boughtState(t *testing.T, c *Curve, solIn uint64) (ReserveState, uint64) {
	t.Helper()
	res, err := c.ApplyBuy(c.NewState(), solIn, 0)
	require.NoError(t, err)
	return res.State, res.AmountOut
}

func TestQuoteSell_AfterBuy(t *testing.T) {
	c := newTestCurve(t)
	s, tokens := boughtState(t, c, LamportsPerSol)

	q, err := c.QuoteSell(s, tokens, 100)
	require.NoError(t, err)

	assert.Equal(t, SideSell, q.Side)
	assert.Equal(t, uint64(979_999_999), q.GrossAmountOut)
	assert.Equal(t, uint64(19_599_999), q.Fees.Total)
	assert.Equal(t, uint64(960_400_000), q.AmountOut)
	assert.Equal(t, q.GrossAmountOut, q.AmountOut+q.Fees.Total)
	assert.Equal(t, q.AmountOut*9900/10000, q.MinimumReceived)

	assert.True(t, q.NewPrice.LessThan(q.CurrentPrice))
	assert.True(t, q.PriceImpact.IsPositive())
	assert.Less(t, q.AmountOut, uint64(LamportsPerSol), "round trip must lose fees")
	assertConserved(t, s, q.NewState)

	impact, err := CalculatePriceImpact(q.GrossAmountOut, q.AmountIn, q.CurrentPrice)
	require.NoError(t, err)
	assert.True(t, impact.Equal(q.ExecutionImpact))
}

func TestQuoteSell_FreshCurveHasNoReserves(t *testing.T) {
	c := newTestCurve(t)
	_, err := c.QuoteSell(c.NewState(), 1_000*TokenUnit, 100)
	assert.ErrorIs(t, err, ErrInsufficientReserves)
}

func TestQuoteSell_MoreThanBought(t *testing.T) {
	c := newTestCurve(t)
	s, tokens := boughtState(t, c, LamportsPerSol)

	_, err := c.QuoteSell(s, tokens*2, 100)
	assert.ErrorIs(t, err, ErrInsufficientReserves)

	_, err = c.QuoteSell(s, s.BondingCurveSupply, 100)
	assert.ErrorIs(t, err, ErrInsufficientReserves)
}

func TestQuoteSell_Rejections(t *testing.T) {
	c := newTestCurve(t)
	s, _ := boughtState(t, c, LamportsPerSol)
	graduated := s
	graduated.IsGraduated = true

	_, err := c.QuoteSell(s, 0, 100)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = c.QuoteSell(graduated, TokenUnit, 100)
	assert.ErrorIs(t, err, ErrAlreadyGraduated)

	_, err = c.QuoteSell(s, 1, 100)
	assert.ErrorIs(t, err, ErrInvalidAmount, "one base unit is worth less than a lamport")
}
