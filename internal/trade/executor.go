package trade

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	"github.com/atmx/curve-engine/internal/bondingcurve"
	"github.com/atmx/curve-engine/internal/events"
	"github.com/atmx/curve-engine/internal/metrics"
	"github.com/atmx/curve-engine/internal/model"
	"github.com/atmx/curve-engine/internal/store"
)

// Order is a validated trade instruction. For buys Amount is lamports in
// and MinAmountOut the fewest tokens accepted; for sells Amount is tokens
// in and MinAmountOut the fewest lamports the curve must release, before
// fees.
type Order struct {
	UserID       string
	TokenID      string
	Side         bondingcurve.Side
	Amount       uint64
	MinAmountOut uint64
}

func (o Order) validate() error {
	switch {
	case strings.TrimSpace(o.UserID) == "":
		return fmt.Errorf("%w: user_id is required", ErrInvalidRequest)
	case strings.TrimSpace(o.TokenID) == "":
		return fmt.Errorf("%w: token_id is required", ErrInvalidRequest)
	case o.Side != bondingcurve.SideBuy && o.Side != bondingcurve.SideSell:
		return fmt.Errorf("%w: side must be buy or sell", ErrInvalidRequest)
	case o.Amount == 0:
		return fmt.Errorf("%w: amount must be positive", bondingcurve.ErrInvalidAmount)
	}
	return nil
}

// Receipt is the outcome of an executed trade.
type Receipt struct {
	Trade     model.Trade           `json:"trade"`
	Quote     bondingcurve.Quote    `json:"quote"`
	Token     *model.Token          `json:"token"`
	Progress  bondingcurve.Progress `json:"progress"`
	Graduated bool                  `json:"graduated"`
	Balance   uint64                `json:"balance,string"` // trader's token balance after the trade
	Attempts  int                   `json:"attempts"`
}

// Buy spends o.Amount lamports on the curve.
func (s *Service) Buy(ctx context.Context, o Order) (*Receipt, error) {
	o.Side = bondingcurve.SideBuy
	return s.Execute(ctx, o)
}

// Sell returns o.Amount tokens to the curve.
func (s *Service) Sell(ctx context.Context, o Order) (*Receipt, error) {
	o.Side = bondingcurve.SideSell
	return s.Execute(ctx, o)
}

// Execute runs the order against the current reserves. Engine, balance and
// limit failures are returned as is; losing a concurrent update to another
// trade re-prices the order on fresh state, up to the retry policy.
func (s *Service) Execute(ctx context.Context, o Order) (*Receipt, error) {
	if err := o.validate(); err != nil {
		metrics.TradeRejections.WithLabelValues(ErrorCode(err)).Inc()
		return nil, err
	}

	start := time.Now()
	attempts := 0
	op := func() (*Receipt, error) {
		attempts++
		r, err := s.attempt(ctx, o)
		if errors.Is(err, store.ErrStateConflict) {
			metrics.StateConflicts.Inc()
			s.logger.Debug().Str("token_id", o.TokenID).Int("attempt", attempts).Msg("reserve conflict, retrying")
			return nil, err
		}
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		return r, nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.retry.Initial
	b.MaxInterval = s.retry.Max
	r, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(s.retry.MaxAttempts))
	if err != nil {
		metrics.TradeRejections.WithLabelValues(ErrorCode(err)).Inc()
		s.logger.Info().Err(err).
			Str("token_id", o.TokenID).
			Str("user", o.UserID).
			Str("side", string(o.Side)).
			Uint64("amount", o.Amount).
			Int("attempts", attempts).
			Msg("trade rejected")
		return nil, err
	}
	r.Attempts = attempts

	side := string(o.Side)
	metrics.TradesTotal.WithLabelValues(side).Inc()
	metrics.TradeLatency.WithLabelValues(side).Observe(time.Since(start).Seconds())
	metrics.FeesCollected.WithLabelValues("platform").Add(float64(r.Quote.Fees.Platform))
	metrics.FeesCollected.WithLabelValues("creator").Add(float64(r.Quote.Fees.Creator))
	if o.Side == bondingcurve.SideBuy {
		metrics.SolVolume.WithLabelValues(side).Add(float64(r.Quote.AmountIn))
	} else {
		metrics.SolVolume.WithLabelValues(side).Add(float64(r.Quote.GrossAmountOut))
	}

	s.logger.Info().
		Str("trade_id", r.Trade.ID).
		Str("token_id", o.TokenID).
		Str("user", o.UserID).
		Str("side", side).
		Uint64("amount_in", r.Trade.AmountIn).
		Uint64("amount_out", r.Trade.AmountOut).
		Str("price", r.Trade.Price.String()).
		Str("impact_pct", r.Quote.PriceImpact.StringFixed(4)).
		Int("attempts", attempts).
		Msg("trade executed")

	s.publish(ctx, events.TradeEvent{
		Type:      events.TypeTrade,
		TokenID:   r.Token.ID,
		Mint:      r.Token.Mint,
		Side:      o.Side,
		UserID:    o.UserID,
		AmountIn:  r.Trade.AmountIn,
		AmountOut: r.Trade.AmountOut,
		Price:     r.Trade.Price,
		MarketCap: bondingcurve.MarketCap(r.Token.Reserves),
		Progress:  r.Progress.Percentage,
		Graduated: r.Graduated,
		Timestamp: r.Trade.Timestamp,
	})
	if r.Graduated {
		metrics.Graduations.Inc()
		s.logger.Info().Str("token_id", r.Token.ID).Str("trade_id", r.Trade.ID).Msg("curve graduated")
	}
	return r, nil
}

// attempt is one read-price-commit cycle.
func (s *Service) attempt(ctx context.Context, o Order) (*Receipt, error) {
	t, err := s.store.GetToken(ctx, o.TokenID)
	if err != nil {
		return nil, err
	}

	holdings, err := s.store.GetUserHoldings(ctx, o.UserID)
	if err != nil {
		return nil, err
	}
	balance := store.FindHolding(holdings, o.TokenID).Balance

	var res bondingcurve.TradeResult
	switch o.Side {
	case bondingcurve.SideBuy:
		res, err = s.curve.ApplyBuy(t.Reserves, o.Amount, o.MinAmountOut)
		if err != nil {
			return nil, err
		}
		if err := s.limiter.CheckBuy(balance, res.AmountOut, t.Reserves.TotalSupply); err != nil {
			return nil, err
		}
		balance += res.AmountOut
	case bondingcurve.SideSell:
		if o.Amount > balance {
			return nil, fmt.Errorf("%w: selling %d, holding %d", ErrInsufficientBalance, o.Amount, balance)
		}
		res, err = s.curve.ApplySell(t.Reserves, o.Amount, o.MinAmountOut)
		if err != nil {
			return nil, err
		}
		balance -= o.Amount
	}

	tr := model.Trade{
		ID:           uuid.New().String(),
		TokenID:      t.ID,
		UserID:       o.UserID,
		Side:         o.Side,
		AmountIn:     res.AmountIn,
		AmountOut:    res.AmountOut,
		PlatformFee:  res.Fees.Platform,
		CreatorFee:   res.Fees.Creator,
		Price:        res.NewPrice,
		AveragePrice: res.AveragePrice,
		PriceImpact:  res.PriceImpact,
		Timestamp:    s.now().UTC(),
	}
	updated, err := s.store.RecordTrade(ctx, t.Version, res.State, &tr)
	if err != nil {
		return nil, err
	}

	return &Receipt{
		Trade:     tr,
		Quote:     res.Quote,
		Token:     updated,
		Progress:  bondingcurve.GraduationProgress(updated.Reserves),
		Graduated: res.Graduated,
		Balance:   balance,
	}, nil
}
