package trade

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/atmx/curve-engine/internal/bondingcurve"
	"github.com/atmx/curve-engine/internal/model"
	"github.com/atmx/curve-engine/internal/token"
)

// DefaultSlippageBps is applied to quotes that do not name a tolerance.
const DefaultSlippageBps = 100

// CreateTokenRequest is the body of POST /api/v1/tokens.
type CreateTokenRequest struct {
	Name        string `json:"name"`
	Symbol      string `json:"symbol"`
	Description string `json:"description"`
	Creator     string `json:"creator"`
	Mint        string `json:"mint,omitempty"`
}

// TradeRequest is the body of POST /api/v1/trade. Amounts are base units;
// lamports for buys, token units for sells. MinAmountOut is the fewest
// tokens for buys and the fewest gross lamports (before fees) for sells. It
// may be omitted, in which case SlippageBps (if set) derives it from a fresh
// quote.
type TradeRequest struct {
	UserID       string          `json:"user_id"`
	TokenID      string          `json:"token_id"`
	Side         string          `json:"side"`
	Amount       decimal.Decimal `json:"amount"`
	MinAmountOut decimal.Decimal `json:"min_amount_out"`
	SlippageBps  *uint64         `json:"slippage_bps,omitempty"`
}

// TokenResponse is a token with its live market snapshot.
type TokenResponse struct {
	*model.Token
	Market PriceInfo `json:"market"`
}

// Routes mounts the trading API on r.
func (s *Service) Routes(r chi.Router) {
	r.Route("/tokens", func(r chi.Router) {
		r.Post("/", s.HandleCreateToken)
		r.Get("/", s.HandleListTokens)
		r.Route("/{tokenID}", func(r chi.Router) {
			r.Get("/", s.HandleGetToken)
			r.Get("/price", s.HandlePrice)
			r.Get("/quote", s.HandleQuote)
			r.Get("/progress", s.HandleProgress)
			r.Get("/trades", s.HandleTrades)
			r.Get("/fees", s.HandleFees)
			r.Post("/graduate", s.HandleGraduate)
		})
	})
	r.Post("/trade", s.HandleTrade)
	r.Get("/portfolio/{userID}", s.HandlePortfolio)
	r.Get("/portfolio/{userID}/trades", s.HandleUserTrades)
}

// fail logs unexpected failures and writes the error response.
func (s *Service) fail(w http.ResponseWriter, r *http.Request, err error) {
	if HTTPStatus(err) >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	writeError(w, err)
}

// HandleCreateToken handles POST /api/v1/tokens
func (s *Service) HandleCreateToken(w http.ResponseWriter, r *http.Request) {
	var req CreateTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("%w: invalid request body", ErrInvalidRequest))
		return
	}

	t, err := s.CreateToken(r.Context(), token.Metadata{
		Name:        req.Name,
		Symbol:      req.Symbol,
		Description: req.Description,
		Creator:     req.Creator,
		Mint:        req.Mint,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, TokenResponse{Token: t, Market: s.priceInfo(t)})
}

// HandleListTokens handles GET /api/v1/tokens
// ?graduated=true|false filters by curve status.
func (s *Service) HandleListTokens(w http.ResponseWriter, r *http.Request) {
	tokens, err := s.ListTokens(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}

	var filter *bool
	if v := r.URL.Query().Get("graduated"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, fmt.Errorf("%w: graduated must be a boolean", ErrInvalidRequest))
			return
		}
		filter = &b
	}

	resp := make([]TokenResponse, 0, len(tokens))
	for i := range tokens {
		t := &tokens[i]
		if filter != nil && t.Reserves.IsGraduated != *filter {
			continue
		}
		resp = append(resp, TokenResponse{Token: t, Market: s.priceInfo(t)})
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleGetToken handles GET /api/v1/tokens/{tokenID}
func (s *Service) HandleGetToken(w http.ResponseWriter, r *http.Request) {
	t, err := s.GetToken(r.Context(), chi.URLParam(r, "tokenID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, TokenResponse{Token: t, Market: s.priceInfo(t)})
}

// HandlePrice handles GET /api/v1/tokens/{tokenID}/price
func (s *Service) HandlePrice(w http.ResponseWriter, r *http.Request) {
	info, err := s.Price(r.Context(), chi.URLParam(r, "tokenID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// HandleQuote handles GET /api/v1/tokens/{tokenID}/quote?side=&amount=&slippage_bps=
func (s *Service) HandleQuote(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	side, err := bondingcurve.ParseSide(q.Get("side"))
	if err != nil {
		writeError(w, fmt.Errorf("%w: %v", ErrInvalidRequest, err))
		return
	}
	amount, err := bondingcurve.ParseAmountString(q.Get("amount"))
	if err != nil {
		writeError(w, err)
		return
	}
	slippage := uint64(DefaultSlippageBps)
	if v := q.Get("slippage_bps"); v != "" {
		slippage, err = strconv.ParseUint(v, 10, 64)
		if err != nil {
			writeError(w, fmt.Errorf("%w: %q", bondingcurve.ErrInvalidSlippage, v))
			return
		}
	}

	quote, err := s.Quote(r.Context(), chi.URLParam(r, "tokenID"), side, amount, slippage)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

// HandleProgress handles GET /api/v1/tokens/{tokenID}/progress
func (s *Service) HandleProgress(w http.ResponseWriter, r *http.Request) {
	p, err := s.Progress(r.Context(), chi.URLParam(r, "tokenID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// HandleTrades handles GET /api/v1/tokens/{tokenID}/trades
// Returns the ledger in execution order, for price history.
func (s *Service) HandleTrades(w http.ResponseWriter, r *http.Request) {
	trades, err := s.Trades(r.Context(), chi.URLParam(r, "tokenID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if trades == nil {
		trades = []model.Trade{}
	}
	writeJSON(w, http.StatusOK, trades)
}

// HandleFees handles GET /api/v1/tokens/{tokenID}/fees
func (s *Service) HandleFees(w http.ResponseWriter, r *http.Request) {
	fees, err := s.Fees(r.Context(), chi.URLParam(r, "tokenID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, fees)
}

// HandleGraduate handles POST /api/v1/tokens/{tokenID}/graduate
func (s *Service) HandleGraduate(w http.ResponseWriter, r *http.Request) {
	t, err := s.Graduate(r.Context(), chi.URLParam(r, "tokenID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, TokenResponse{Token: t, Market: s.priceInfo(t)})
}

// HandleTrade handles POST /api/v1/trade
// Executes against the curve and returns the fill and updated reserves.
func (s *Service) HandleTrade(w http.ResponseWriter, r *http.Request) {
	var req TradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("%w: invalid request body", ErrInvalidRequest))
		return
	}

	side, err := bondingcurve.ParseSide(req.Side)
	if err != nil {
		writeError(w, fmt.Errorf("%w: side must be buy or sell", ErrInvalidRequest))
		return
	}
	amount, err := bondingcurve.ParseAmount(req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}

	order := Order{UserID: req.UserID, TokenID: req.TokenID, Side: side, Amount: amount}
	switch {
	case !req.MinAmountOut.IsZero():
		if order.MinAmountOut, err = bondingcurve.ParseAmount(req.MinAmountOut); err != nil {
			writeError(w, err)
			return
		}
	case req.SlippageBps != nil:
		q, err := s.Quote(r.Context(), req.TokenID, side, amount, *req.SlippageBps)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		order.MinAmountOut = q.MinimumReceived
		if side == bondingcurve.SideSell {
			// Sell minimums bound the curve's gross payout.
			order.MinAmountOut = bondingcurve.MinimumOut(q.GrossAmountOut, *req.SlippageBps)
		}
	}

	receipt, err := s.Execute(r.Context(), order)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

// HandlePortfolio handles GET /api/v1/portfolio/{userID}
// Returns holdings marked to current curve prices with realized and
// unrealized P&L.
func (s *Service) HandlePortfolio(w http.ResponseWriter, r *http.Request) {
	p, err := s.Portfolio(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// HandleUserTrades handles GET /api/v1/portfolio/{userID}/trades
func (s *Service) HandleUserTrades(w http.ResponseWriter, r *http.Request) {
	trades, err := s.UserTrades(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if trades == nil {
		trades = []model.Trade{}
	}
	writeJSON(w, http.StatusOK, trades)
}
