package bondingcurve

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyBuy_RepeatedBuys(t *testing.T) {
	p := DefaultParams()
	p.InitialRealTokens = 1_000_000_000 * TokenUnit
	c, err := NewCurve(p)
	require.NoError(t, err)

	s := c.NewState()
	prev := CurrentPrice(s)
	for i := 0; i < 100; i++ {
		res, err := c.ApplyBuy(s, LamportsPerSol, 0)
		require.NoError(t, err, "buy %d", i)
		price := CurrentPrice(res.State)
		require.True(t, price.GreaterThan(prev), "price must rise on buy %d", i)
		assertConserved(t, s, res.State)
		prev = price
		s = res.State
	}

	assert.Equal(t, uint64(128_000_000_000), s.VirtualSolReserves)
	assert.Equal(t, uint64(251_484_375_000_000_032), s.VirtualTokenReserves)
	assert.Equal(t, uint64(98_000_000_000), s.RealSolReserves)
	assert.Equal(t, uint64(178_484_375_000_000_032), s.RealTokenReserves)
	assert.False(t, s.IsGraduated)
}

func graduationEdgeState() ReserveState {
	return ReserveState{
		VirtualSolReserves:   1_000_000,
		VirtualTokenReserves: 1_000_000_000,
		RealSolReserves:      29_999,
		RealTokenReserves:    500_000_000,
		GraduationThreshold:  30_000,
		BondingCurveSupply:   800_000_000,
		TotalSupply:          1_000_000_000,
	}
}

func TestApplyBuy_CrossesGraduation(t *testing.T) {
	c := newTestCurve(t)
	s := graduationEdgeState()

	res, err := c.ApplyBuy(s, 2, 0)
	require.NoError(t, err)
	assert.Zero(t, res.Fees.Total)
	assert.Equal(t, uint64(1999), res.AmountOut)
	assert.Equal(t, uint64(30_001), res.State.RealSolReserves)
	assert.True(t, res.State.IsGraduated)
	assert.True(t, res.Graduated)

	_, err = c.QuoteBuy(res.State, 2, 0)
	assert.ErrorIs(t, err, ErrAlreadyGraduated)
	_, err = c.ApplySell(res.State, 1999, 0)
	assert.ErrorIs(t, err, ErrAlreadyGraduated)
}

func TestApplyBuy_BelowThresholdStaysOpen(t *testing.T) {
	c := newTestCurve(t)
	s := graduationEdgeState()
	s.RealSolReserves = 29_000

	res, err := c.ApplyBuy(s, 2, 0)
	require.NoError(t, err)
	assert.False(t, res.State.IsGraduated)
	assert.False(t, res.Graduated)
}

func TestApplyBuy_SlippageExceeded(t *testing.T) {
	c := newTestCurve(t)
	s := c.NewState()
	before := s

	q, err := c.QuoteBuy(s, LamportsPerSol, 0)
	require.NoError(t, err)

	failed, err := c.ApplyBuy(s, LamportsPerSol, q.AmountOut+1)
	assert.ErrorIs(t, err, ErrSlippageExceeded)
	assert.Equal(t, before, s)
	assert.Equal(t, before, failed.State, "a rejected buy reports the input state")

	res, err := c.ApplyBuy(s, LamportsPerSol, q.AmountOut)
	require.NoError(t, err)
	assert.Equal(t, q.AmountOut, res.AmountOut)
	assert.Equal(t, q.NewState, res.State)
}

func TestApplySell_SlippageOnGrossOutput(t *testing.T) {
	c := newTestCurve(t)
	s, tokens := boughtState(t, c, LamportsPerSol)

	// The curve releases 979,999,999 lamports gross; the seller nets
	// 960,400,000 after the 2% fee. The bound applies to the gross amount.
	failed, err := c.ApplySell(s, tokens, 980_000_000)
	assert.ErrorIs(t, err, ErrSlippageExceeded)
	assert.Equal(t, s, failed.State, "a rejected sell reports the input state")

	res, err := c.ApplySell(s, tokens, 979_999_999)
	require.NoError(t, err)
	assert.Equal(t, uint64(979_999_999), res.GrossAmountOut)
	assert.Equal(t, uint64(960_400_000), res.AmountOut)
	assert.Equal(t, uint64(980_000_000-960_400_000), res.State.RealSolReserves)
	assert.Equal(t, s.BondingCurveSupply, res.State.RealTokenReserves)
	assert.False(t, res.Graduated)
}

func TestApply_EngineErrorReportsInputState(t *testing.T) {
	c := newTestCurve(t)
	s := c.NewState()

	res, err := c.ApplyBuy(s, 0, 0)
	assert.ErrorIs(t, err, ErrInvalidAmount)
	assert.Equal(t, s, res.State)

	res, err = c.ApplySell(s, 1_000*TokenUnit, 0)
	assert.ErrorIs(t, err, ErrInsufficientReserves)
	assert.Equal(t, s, res.State)
}

func TestApply_RoundTripLosesFees(t *testing.T) {
	c := newTestCurve(t)
	for _, in := range []uint64{LamportsPerSol / 100, LamportsPerSol, 10 * LamportsPerSol} {
		s, tokens := boughtState(t, c, in)
		res, err := c.ApplySell(s, tokens, 0)
		require.NoError(t, err)
		assert.Less(t, res.AmountOut, in, "amount %d", in)
		assert.LessOrEqual(t, res.State.RealSolReserves, s.RealSolReserves)
	}
}

func TestGraduate(t *testing.T) {
	s := graduationEdgeState()

	_, err := Graduate(s)
	assert.ErrorIs(t, err, ErrCannotGraduate)

	s.RealSolReserves = s.GraduationThreshold
	g, err := Graduate(s)
	require.NoError(t, err)
	assert.True(t, g.IsGraduated)
	assert.False(t, s.IsGraduated, "input copy must not change")

	_, err = Graduate(g)
	assert.ErrorIs(t, err, ErrAlreadyGraduated)
}
