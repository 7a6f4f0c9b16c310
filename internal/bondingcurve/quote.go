package bondingcurve

import (
	"fmt"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// Side is the direction of a trade from the trader's point of view.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// ParseSide accepts "buy" or "sell".
func ParseSide(s string) (Side, error) {
	switch Side(s) {
	case SideBuy, SideSell:
		return Side(s), nil
	}
	return "", fmt.Errorf("bondingcurve: unknown side %q", s)
}

// Fees is the fee breakdown of one trade, in lamports. The engine only
// computes the amounts; moving them to the treasury is the caller's job.
type Fees struct {
	Platform uint64 `json:"platform,string"`
	Creator  uint64 `json:"creator,string"`
	Total    uint64 `json:"total,string"`
}

// Quote is a priced trade against one reserve snapshot.
//
// For buys AmountIn is gross SOL, NetAmountIn the SOL that reaches the curve
// and AmountOut the tokens received. For sells AmountIn is tokens,
// GrossAmountOut the SOL released by the curve and AmountOut the SOL the
// trader receives after fees.
type Quote struct {
	Side            Side            `json:"side"`
	AmountIn        uint64          `json:"amount_in,string"`
	NetAmountIn     uint64          `json:"net_amount_in,string"`
	GrossAmountOut  uint64          `json:"gross_amount_out,string"`
	AmountOut       uint64          `json:"amount_out,string"`
	CurrentPrice    decimal.Decimal `json:"current_price"`
	NewPrice        decimal.Decimal `json:"new_price"`
	AveragePrice    decimal.Decimal `json:"average_price"`
	PriceImpact     decimal.Decimal `json:"price_impact"`
	ExecutionImpact decimal.Decimal `json:"execution_impact"`
	Severity        ImpactSeverity  `json:"severity"`
	SlippageBps     uint64          `json:"slippage_bps"`
	Fees            Fees            `json:"fees"`
	MinimumReceived uint64          `json:"minimum_received,string"`
	Warning         string          `json:"warning,omitempty"`
	NewState        ReserveState    `json:"new_state"`
}

// fees splits the total fee on a gross amount. The total is computed on the
// combined rate so it is exactly floor(amount * totalFeeBps / 10000); the
// creator share absorbs the rounding remainder.
func (c *Curve) fees(gross uint64) Fees {
	total := bpsOf(gross, c.params.TotalFeeBps())
	platform := bpsOf(gross, c.params.PlatformFeeBps)
	return Fees{Platform: platform, Creator: total - platform, Total: total}
}

// MinimumOut returns amount reduced by a slippage tolerance:
// floor(amount * (10000 - slippageBps) / 10000). Tolerances above 10000 bps
// yield zero.
func MinimumOut(amount, slippageBps uint64) uint64 {
	if slippageBps >= BpsDenominator {
		return 0
	}
	return bpsOf(amount, BpsDenominator-slippageBps)
}

func (c *Curve) precheck(s ReserveState, amount, slippageBps uint64) error {
	if s.IsGraduated {
		return ErrAlreadyGraduated
	}
	if amount == 0 {
		return ErrInvalidAmount
	}
	if slippageBps > BpsDenominator {
		return ErrInvalidSlippage
	}
	if err := s.Validate(); err != nil {
		return err
	}
	if supply := c.curveSupply(s); s.RealTokenReserves > supply {
		return fmt.Errorf("%w: real token reserves %d exceed curve supply %d",
			ErrInvalidState, s.RealTokenReserves, supply)
	}
	return nil
}

// curveSupply is the token allocation of the curve: the snapshot's own
// value, or the configured initial real tokens when the snapshot has none.
func (c *Curve) curveSupply(s ReserveState) uint64 {
	if s.BondingCurveSupply != 0 {
		return s.BondingCurveSupply
	}
	return c.params.InitialRealTokens
}

// QuoteBuy prices spending solAmountIn lamports. The fee is taken from the
// gross input before the curve sees it:
//
//	netIn     = solAmountIn - fee
//	newSol    = vSol + netIn
//	newTok    = ceil(vSol * vTok / newSol)
//	tokensOut = vTok - newTok
//
// The state is not modified.
func (c *Curve) QuoteBuy(s ReserveState, solAmountIn, slippageBps uint64) (Quote, error) {
	if err := c.precheck(s, solAmountIn, slippageBps); err != nil {
		return Quote{}, err
	}
	if c.params.MaxBuyLamports > 0 && solAmountIn > c.params.MaxBuyLamports {
		return Quote{}, fmt.Errorf("%w: %d > %d lamports", ErrMaxBuyExceeded, solAmountIn, c.params.MaxBuyLamports)
	}

	fees := c.fees(solAmountIn)
	netIn := solAmountIn - fees.Total
	if netIn == 0 {
		return Quote{}, fmt.Errorf("%w: nothing left after fees", ErrInvalidAmount)
	}

	newSol, err := checkedAdd(s.VirtualSolReserves, netIn)
	if err != nil {
		return Quote{}, err
	}
	newTok := ceilDiv(s.K(), u256(newSol)).Uint64()
	tokensOut := s.VirtualTokenReserves - newTok
	if tokensOut == 0 {
		return Quote{}, fmt.Errorf("%w: amount too small to buy a token unit", ErrInvalidAmount)
	}
	if tokensOut > s.RealTokenReserves {
		return Quote{}, fmt.Errorf("%w: %d tokens requested, %d available",
			ErrInsufficientLiquidity, tokensOut, s.RealTokenReserves)
	}

	realSol, err := checkedAdd(s.RealSolReserves, netIn)
	if err != nil {
		return Quote{}, err
	}
	next := s
	next.VirtualSolReserves = newSol
	next.VirtualTokenReserves = newTok
	next.RealSolReserves = realSol
	next.RealTokenReserves = s.RealTokenReserves - tokensOut
	next = next.withGraduation()

	q := Quote{
		Side:            SideBuy,
		AmountIn:        solAmountIn,
		NetAmountIn:     netIn,
		GrossAmountOut:  tokensOut,
		AmountOut:       tokensOut,
		SlippageBps:     slippageBps,
		Fees:            fees,
		MinimumReceived: MinimumOut(tokensOut, slippageBps),
		NewState:        next,
	}
	if err := c.price(&q, s, next, netIn, tokensOut); err != nil {
		return Quote{}, err
	}
	return q, nil
}

// QuoteSell prices selling tokenAmountIn base units. The curve releases
// solOut gross and the fee is taken from that output:
//
//	newTok    = vTok + tokenAmountIn
//	newSol    = ceil(vSol * vTok / newTok)
//	solOut    = vSol - newSol
//	netSolOut = solOut - fee
//
// The caller is responsible for checking the seller's token balance.
func (c *Curve) QuoteSell(s ReserveState, tokenAmountIn, slippageBps uint64) (Quote, error) {
	if err := c.precheck(s, tokenAmountIn, slippageBps); err != nil {
		return Quote{}, err
	}

	newTok, err := checkedAdd(s.VirtualTokenReserves, tokenAmountIn)
	if err != nil {
		return Quote{}, err
	}
	realTok, err := checkedAdd(s.RealTokenReserves, tokenAmountIn)
	if err != nil || realTok > c.curveSupply(s) {
		return Quote{}, fmt.Errorf("%w: %d tokens exceed the curve allocation", ErrInsufficientReserves, tokenAmountIn)
	}

	newSol := ceilDiv(s.K(), u256(newTok)).Uint64()
	if newSol == 0 {
		return Quote{}, fmt.Errorf("%w: virtual SOL reserves would be exhausted", ErrInsufficientReserves)
	}
	solOut := s.VirtualSolReserves - newSol
	if solOut == 0 {
		return Quote{}, fmt.Errorf("%w: amount too small to receive a lamport", ErrInvalidAmount)
	}

	fees := c.fees(solOut)
	netOut := solOut - fees.Total
	if netOut > s.RealSolReserves {
		return Quote{}, fmt.Errorf("%w: %d lamports owed, %d held",
			ErrInsufficientReserves, netOut, s.RealSolReserves)
	}

	next := s
	next.VirtualSolReserves = newSol
	next.VirtualTokenReserves = newTok
	next.RealSolReserves = s.RealSolReserves - netOut
	next.RealTokenReserves = realTok

	q := Quote{
		Side:            SideSell,
		AmountIn:        tokenAmountIn,
		NetAmountIn:     tokenAmountIn,
		GrossAmountOut:  solOut,
		AmountOut:       netOut,
		SlippageBps:     slippageBps,
		Fees:            fees,
		MinimumReceived: MinimumOut(netOut, slippageBps),
		NewState:        next,
	}
	if err := c.price(&q, s, next, solOut, tokenAmountIn); err != nil {
		return Quote{}, err
	}
	return q, nil
}

// price fills the price fields of q. solSide and tokenSide are the
// curve-side amounts of the trade, fees excluded.
func (c *Curve) price(q *Quote, before, after ReserveState, solSide, tokenSide uint64) error {
	// Exact monotonicity: compare newSol/newTok with vSol/vTok by
	// cross-multiplication, then derive the impact from the same products.
	newCross := product(after.VirtualSolReserves, before.VirtualTokenReserves)
	oldCross := product(before.VirtualSolReserves, after.VirtualTokenReserves)

	var diff *uint256.Int
	switch q.Side {
	case SideBuy:
		if newCross.Lt(oldCross) {
			return fmt.Errorf("%w: buy would lower the price", ErrInvalidState)
		}
		diff = new(uint256.Int).Sub(newCross, oldCross)
	default:
		if newCross.Gt(oldCross) {
			return fmt.Errorf("%w: sell would raise the price", ErrInvalidState)
		}
		diff = new(uint256.Int).Sub(oldCross, newCross)
	}

	q.CurrentPrice = CurrentPrice(before)
	q.NewPrice = CurrentPrice(after)
	q.AveragePrice = ratio(u256(solSide), u256(tokenSide), PriceScale)
	q.PriceImpact = decFromU256(diff).Mul(hundred).DivRound(decFromU256(oldCross), ImpactScale)
	q.Severity = SeverityOf(q.PriceImpact)

	impact, err := CalculatePriceImpact(solSide, tokenSide, q.CurrentPrice)
	if err != nil {
		return err
	}
	q.ExecutionImpact = impact

	if q.PriceImpact.GreaterThan(c.params.ImpactWarningPct) {
		q.Warning = fmt.Sprintf("high price impact: %s%% exceeds %s%%",
			q.PriceImpact.StringFixed(2), c.params.ImpactWarningPct.String())
	}
	return nil
}
