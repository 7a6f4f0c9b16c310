package trade

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/atmx/curve-engine/internal/bondingcurve"
	"github.com/atmx/curve-engine/internal/limits"
	"github.com/atmx/curve-engine/internal/store"
	"github.com/atmx/curve-engine/internal/token"
)

type errorClass struct {
	err    error
	code   string
	status int
}

// errorClasses is checked in order; the first errors.Is match wins.
var errorClasses = []errorClass{
	{bondingcurve.ErrInvalidAmount, "invalid_amount", http.StatusBadRequest},
	{bondingcurve.ErrInvalidSlippage, "invalid_slippage", http.StatusBadRequest},
	{ErrInvalidRequest, "invalid_request", http.StatusBadRequest},
	{token.ErrInvalidName, "invalid_name", http.StatusBadRequest},
	{token.ErrInvalidSymbol, "invalid_symbol", http.StatusBadRequest},
	{token.ErrDescriptionTooLong, "description_too_long", http.StatusBadRequest},
	{token.ErrInvalidMint, "invalid_mint", http.StatusBadRequest},
	{token.ErrInvalidCreator, "invalid_creator", http.StatusBadRequest},

	{store.ErrNotFound, "not_found", http.StatusNotFound},

	{bondingcurve.ErrAlreadyGraduated, "already_graduated", http.StatusConflict},
	{bondingcurve.ErrCannotGraduate, "cannot_graduate", http.StatusConflict},
	{store.ErrDuplicate, "duplicate", http.StatusConflict},
	{store.ErrStateConflict, "state_conflict", http.StatusConflict},

	{bondingcurve.ErrInsufficientLiquidity, "insufficient_liquidity", http.StatusUnprocessableEntity},
	{bondingcurve.ErrInsufficientReserves, "insufficient_reserves", http.StatusUnprocessableEntity},
	{bondingcurve.ErrSlippageExceeded, "slippage_exceeded", http.StatusUnprocessableEntity},
	{bondingcurve.ErrMaxBuyExceeded, "max_buy_exceeded", http.StatusUnprocessableEntity},
	{bondingcurve.ErrMathOverflow, "math_overflow", http.StatusUnprocessableEntity},
	{limits.ErrWalletLimitExceeded, "wallet_limit_exceeded", http.StatusUnprocessableEntity},
	{ErrInsufficientBalance, "insufficient_balance", http.StatusUnprocessableEntity},

	{bondingcurve.ErrInvalidState, "invalid_state", http.StatusInternalServerError},
	{context.DeadlineExceeded, "timeout", http.StatusServiceUnavailable},
	{context.Canceled, "canceled", http.StatusServiceUnavailable},
}

func classify(err error) (string, int) {
	for _, c := range errorClasses {
		if errors.Is(err, c.err) {
			return c.code, c.status
		}
	}
	return "internal", http.StatusInternalServerError
}

// ErrorCode returns the stable machine-readable code for err, as used in
// error bodies and the rejection metric.
func ErrorCode(err error) string {
	code, _ := classify(err)
	return code
}

// HTTPStatus returns the status code err is reported with.
func HTTPStatus(err error) int {
	_, status := classify(err)
	return status
}

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// writeError writes err as a JSON error response. Internal failures are
// reported without their driver detail.
func writeError(w http.ResponseWriter, err error) {
	code, status := classify(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	writeJSON(w, status, ErrorResponse{Error: msg, Code: code})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
