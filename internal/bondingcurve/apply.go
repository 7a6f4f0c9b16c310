package bondingcurve

import "fmt"

// TradeResult is an executed trade: the quote it was priced at and the
// reserve state the store must persist.
type TradeResult struct {
	Quote
	State ReserveState `json:"state"`
	// Graduated is true only for the trade that crossed the threshold.
	Graduated bool `json:"graduated"`
}

// ApplyBuy re-derives the buy quote from s and returns the post-trade state.
// It fails with ErrSlippageExceeded when fewer than minTokensOut tokens
// would be received. On failure the returned State is s unchanged.
func (c *Curve) ApplyBuy(s ReserveState, solAmountIn, minTokensOut uint64) (TradeResult, error) {
	q, err := c.QuoteBuy(s, solAmountIn, 0)
	if err != nil {
		return TradeResult{State: s}, err
	}
	if q.AmountOut < minTokensOut {
		return TradeResult{State: s}, fmt.Errorf("%w: %d tokens out, minimum %d", ErrSlippageExceeded, q.AmountOut, minTokensOut)
	}
	return TradeResult{
		Quote:     q,
		State:     q.NewState,
		Graduated: !s.IsGraduated && q.NewState.IsGraduated,
	}, nil
}

// ApplySell re-derives the sell quote from s and returns the post-trade
// state. minSolOut bounds the gross SOL released by the curve, before the
// fee is taken. On failure the returned State is s unchanged.
func (c *Curve) ApplySell(s ReserveState, tokenAmountIn, minSolOut uint64) (TradeResult, error) {
	q, err := c.QuoteSell(s, tokenAmountIn, 0)
	if err != nil {
		return TradeResult{State: s}, err
	}
	if q.GrossAmountOut < minSolOut {
		return TradeResult{State: s}, fmt.Errorf("%w: %d lamports out, minimum %d", ErrSlippageExceeded, q.GrossAmountOut, minSolOut)
	}
	return TradeResult{Quote: q, State: q.NewState}, nil
}

// Graduate marks a curve whose real SOL reserves reached the threshold as
// graduated. Buys crossing the threshold already flip the flag; Graduate is
// the explicit form for states imported with the threshold already met.
func Graduate(s ReserveState) (ReserveState, error) {
	if s.IsGraduated {
		return s, ErrAlreadyGraduated
	}
	if !s.CanGraduate() {
		return s, fmt.Errorf("%w: %d of %d lamports", ErrCannotGraduate, s.RealSolReserves, s.GraduationThreshold)
	}
	s.IsGraduated = true
	return s, nil
}
