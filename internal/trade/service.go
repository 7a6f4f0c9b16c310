// Package trade provides the business logic and HTTP handlers for launching
// tokens, quoting and executing bonding-curve trades, and querying
// holdings.
//
// Trades use optimistic concurrency: each attempt reads the token, prices
// the trade against that snapshot and commits with a compare-and-swap on
// the token version. A lost race re-runs the whole cycle on fresh state.
package trade

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/atmx/curve-engine/internal/bondingcurve"
	"github.com/atmx/curve-engine/internal/events"
	"github.com/atmx/curve-engine/internal/limits"
	"github.com/atmx/curve-engine/internal/metrics"
	"github.com/atmx/curve-engine/internal/model"
	"github.com/atmx/curve-engine/internal/store"
	"github.com/atmx/curve-engine/internal/token"
)

var (
	ErrInvalidRequest      = errors.New("trade: invalid request")
	ErrInsufficientBalance = errors.New("trade: insufficient token balance")
)

// RetryPolicy bounds the re-execution of a trade that lost a concurrent
// reserve update.
type RetryPolicy struct {
	MaxAttempts uint
	Initial     time.Duration
	Max         time.Duration
}

// DefaultRetryPolicy retries quickly; conflicts clear within microseconds.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 5, Initial: 5 * time.Millisecond, Max: 200 * time.Millisecond}
}

// Service executes trades against bonding curves held in a Store.
type Service struct {
	store     store.Store
	curve     *bondingcurve.Curve
	limiter   *limits.HoldingLimiter
	publisher events.Publisher
	retry     RetryPolicy
	logger    zerolog.Logger
	now       func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

// WithRetry sets the conflict retry policy.
func WithRetry(p RetryPolicy) Option { return func(s *Service) { s.retry = p } }

// WithLogger sets the service logger.
func WithLogger(l zerolog.Logger) Option { return func(s *Service) { s.logger = l } }

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// NewService creates a trade service. A nil limiter disables holding limits
// and a nil publisher discards events.
func NewService(st store.Store, curve *bondingcurve.Curve, limiter *limits.HoldingLimiter, pub events.Publisher, opts ...Option) *Service {
	if pub == nil {
		pub = events.Discard{}
	}
	s := &Service{
		store:     st,
		curve:     curve,
		limiter:   limiter,
		publisher: pub,
		retry:     DefaultRetryPolicy(),
		logger:    zerolog.Nop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.retry.MaxAttempts == 0 {
		s.retry.MaxAttempts = 1
	}
	return s
}

// Curve returns the curve parameters new tokens are launched with.
func (s *Service) Curve() *bondingcurve.Curve { return s.curve }

// --- Tokens ---

// CreateToken validates the metadata and launches a token on a fresh curve.
func (s *Service) CreateToken(ctx context.Context, meta token.Metadata) (*model.Token, error) {
	meta, err := token.Validate(meta)
	if err != nil {
		return nil, err
	}

	t := &model.Token{
		ID:          uuid.New().String(),
		Mint:        meta.Mint,
		Name:        meta.Name,
		Symbol:      meta.Symbol,
		Description: meta.Description,
		Creator:     meta.Creator,
		Reserves:    s.curve.NewState(),
		CreatedAt:   s.now().UTC(),
	}
	if err := s.store.CreateToken(ctx, t); err != nil {
		return nil, err
	}
	metrics.TokensCreated.Inc()

	s.logger.Info().
		Str("token_id", t.ID).
		Str("mint", t.Mint).
		Str("symbol", t.Symbol).
		Str("creator", t.Creator).
		Msg("token created")

	s.publish(ctx, events.TradeEvent{
		Type:      events.TypeTokenNew,
		TokenID:   t.ID,
		Mint:      t.Mint,
		UserID:    t.Creator,
		Price:     bondingcurve.CurrentPrice(t.Reserves),
		MarketCap: bondingcurve.MarketCap(t.Reserves),
		Timestamp: t.CreatedAt,
	})
	return t, nil
}

// GetToken returns a token by ID.
func (s *Service) GetToken(ctx context.Context, id string) (*model.Token, error) {
	return s.store.GetToken(ctx, id)
}

// ListTokens returns all tokens, newest first.
func (s *Service) ListTokens(ctx context.Context) ([]model.Token, error) {
	return s.store.ListTokens(ctx)
}

// PriceInfo is the market snapshot of one curve.
type PriceInfo struct {
	TokenID              string                `json:"token_id"`
	Price                decimal.Decimal       `json:"price"`           // lamports per base unit
	PriceSol             decimal.Decimal       `json:"price_sol"`       // SOL per whole token
	MarketCap            decimal.Decimal       `json:"market_cap"`      // lamports, full supply
	MarketCapSol         decimal.Decimal       `json:"market_cap_sol"`  // SOL, full supply
	CirculatingSupply    uint64                `json:"circulating_supply,string"`
	CirculatingMarketCap decimal.Decimal       `json:"circulating_market_cap"`
	Progress             bondingcurve.Progress `json:"progress"`
}

// Price returns the current price, market cap and graduation progress.
func (s *Service) Price(ctx context.Context, tokenID string) (PriceInfo, error) {
	t, err := s.store.GetToken(ctx, tokenID)
	if err != nil {
		return PriceInfo{}, err
	}
	return s.priceInfo(t), nil
}

func (s *Service) priceInfo(t *model.Token) PriceInfo {
	r := t.Reserves
	price := bondingcurve.CurrentPrice(r)
	mcap := bondingcurve.MarketCap(r)
	return PriceInfo{
		TokenID:              t.ID,
		Price:                price,
		PriceSol:             s.curve.PriceInSol(price),
		MarketCap:            mcap,
		MarketCapSol:         s.curve.LamportsToSol(mcap),
		CirculatingSupply:    bondingcurve.CirculatingSupply(r),
		CirculatingMarketCap: bondingcurve.CirculatingMarketCap(r),
		Progress:             bondingcurve.GraduationProgress(r),
	}
}

// Progress returns the graduation progress of a curve.
func (s *Service) Progress(ctx context.Context, tokenID string) (bondingcurve.Progress, error) {
	t, err := s.store.GetToken(ctx, tokenID)
	if err != nil {
		return bondingcurve.Progress{}, err
	}
	return bondingcurve.GraduationProgress(t.Reserves), nil
}

// Quote prices a trade without executing it.
func (s *Service) Quote(ctx context.Context, tokenID string, side bondingcurve.Side, amount, slippageBps uint64) (bondingcurve.Quote, error) {
	t, err := s.store.GetToken(ctx, tokenID)
	if err != nil {
		return bondingcurve.Quote{}, err
	}

	var q bondingcurve.Quote
	switch side {
	case bondingcurve.SideBuy:
		q, err = s.curve.QuoteBuy(t.Reserves, amount, slippageBps)
	case bondingcurve.SideSell:
		q, err = s.curve.QuoteSell(t.Reserves, amount, slippageBps)
	default:
		return bondingcurve.Quote{}, fmt.Errorf("%w: side %q", ErrInvalidRequest, side)
	}
	if err != nil {
		return bondingcurve.Quote{}, err
	}
	metrics.QuotesServed.WithLabelValues(string(side)).Inc()
	return q, nil
}

// Graduate explicitly graduates a curve that already met its threshold.
func (s *Service) Graduate(ctx context.Context, tokenID string) (*model.Token, error) {
	op := func() (*model.Token, error) {
		t, err := s.store.GetToken(ctx, tokenID)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		next, err := bondingcurve.Graduate(t.Reserves)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		updated, err := s.store.UpdateReserves(ctx, t.ID, t.Version, next)
		if errors.Is(err, store.ErrStateConflict) {
			metrics.StateConflicts.Inc()
			return nil, err
		}
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		return updated, nil
	}

	t, err := s.withRetry(ctx, op)
	if err != nil {
		return nil, err
	}
	metrics.Graduations.Inc()
	s.logger.Info().Str("token_id", t.ID).Uint64("real_sol", t.Reserves.RealSolReserves).Msg("curve graduated")
	s.publishGraduation(ctx, t, "")
	return t, nil
}

// withRetry runs op until it succeeds, fails permanently or the policy is
// exhausted.
func (s *Service) withRetry(ctx context.Context, op backoff.Operation[*model.Token]) (*model.Token, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.retry.Initial
	b.MaxInterval = s.retry.Max
	return backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(s.retry.MaxAttempts))
}

func (s *Service) publish(ctx context.Context, ev events.TradeEvent) {
	// Delivery is best effort; the state change is already committed.
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.logger.Warn().Err(err).Str("token_id", ev.TokenID).Msg("event publish failed")
	}
}

func (s *Service) publishGraduation(ctx context.Context, t *model.Token, userID string) {
	s.publish(ctx, events.TradeEvent{
		Type:      events.TypeGraduation,
		TokenID:   t.ID,
		Mint:      t.Mint,
		UserID:    userID,
		Price:     bondingcurve.CurrentPrice(t.Reserves),
		MarketCap: bondingcurve.MarketCap(t.Reserves),
		Progress:  bondingcurve.GraduationProgress(t.Reserves).Percentage,
		Graduated: true,
		Timestamp: s.now().UTC(),
	})
}

// --- Ledger views ---

// Trades returns the trade history of a token.
func (s *Service) Trades(ctx context.Context, tokenID string) ([]model.Trade, error) {
	if _, err := s.store.GetToken(ctx, tokenID); err != nil {
		return nil, err
	}
	return s.store.GetTradesByToken(ctx, tokenID)
}

// UserTrades returns a user's trade history across all tokens.
func (s *Service) UserTrades(ctx context.Context, userID string) ([]model.Trade, error) {
	return s.store.GetTradesByUser(ctx, userID)
}

// Fees returns the accrued platform and creator fees of a token.
func (s *Service) Fees(ctx context.Context, tokenID string) (model.FeeTotals, error) {
	return s.store.GetFeeTotals(ctx, tokenID)
}

// Portfolio marks a user's holdings to market at current curve prices.
func (s *Service) Portfolio(ctx context.Context, userID string) (model.Portfolio, error) {
	holdings, err := s.store.GetUserHoldings(ctx, userID)
	if err != nil {
		return model.Portfolio{}, err
	}

	p := model.Portfolio{UserID: userID, Holdings: make([]model.Holding, 0, len(holdings))}
	for _, h := range holdings {
		t, err := s.store.GetToken(ctx, h.TokenID)
		if err != nil {
			return model.Portfolio{}, fmt.Errorf("holding %s: %w", h.TokenID, err)
		}
		h.UserID = userID
		h.Value = u64dec(h.Balance).Mul(bondingcurve.CurrentPrice(t.Reserves))
		h.PnL = h.Value.Add(u64dec(h.SolReceived)).Sub(u64dec(h.SolSpent))
		if s.limiter.Enabled() {
			room := u64dec(s.limiter.MaxBuyable(h.Balance, t.Reserves.TotalSupply))
			h.MaxBuyable = &room
		}

		p.TotalValue = p.TotalValue.Add(h.Value)
		p.TotalSolSpent += h.SolSpent
		p.TotalSolReceived += h.SolReceived
		p.TotalPnL = p.TotalPnL.Add(h.PnL)
		p.Holdings = append(p.Holdings, h)
	}
	return p, nil
}

// u64dec lifts a base-unit amount into a decimal.
func u64dec(x uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(x), 0)
}
