package limits

import (
	"errors"
	"math"
	"testing"
)

const supply = 1_000_000_000 * 1_000_000_000 // 1B tokens, 9 decimals

func TestCheckBuy_Disabled(t *testing.T) {
	var nilLimiter *HoldingLimiter
	if err := nilLimiter.CheckBuy(supply, supply, supply); err != nil {
		t.Errorf("nil limiter must allow everything, got %v", err)
	}
	if err := NewHoldingLimiter(0).CheckBuy(supply, supply, supply); err != nil {
		t.Errorf("zero bps must allow everything, got %v", err)
	}
}

func TestCheckBuy_WithinLimit(t *testing.T) {
	l := NewHoldingLimiter(200) // 2%

	// Exactly at the cap is allowed.
	if err := l.CheckBuy(0, supply/50, supply); err != nil {
		t.Errorf("expected no error at cap, got %v", err)
	}
	if err := l.CheckBuy(supply/100, supply/100, supply); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestCheckBuy_Exceeded(t *testing.T) {
	l := NewHoldingLimiter(200)

	err := l.CheckBuy(supply/100, supply/100+1, supply)
	if !errors.Is(err, ErrWalletLimitExceeded) {
		t.Errorf("expected ErrWalletLimitExceeded, got %v", err)
	}
}

func TestCheckBuy_NoOverflow(t *testing.T) {
	l := NewHoldingLimiter(10_000)
	err := l.CheckBuy(math.MaxUint64, math.MaxUint64, math.MaxUint64)
	if !errors.Is(err, ErrWalletLimitExceeded) {
		t.Errorf("expected ErrWalletLimitExceeded, got %v", err)
	}
	if err := l.CheckBuy(0, math.MaxUint64, math.MaxUint64); err != nil {
		t.Errorf("full supply at 100%% must pass, got %v", err)
	}
}

func TestNewHoldingLimiter_Clamps(t *testing.T) {
	if got := NewHoldingLimiter(20_000).MaxWalletBps; got != 10_000 {
		t.Errorf("expected clamp to 10000, got %d", got)
	}
}

func TestMaxBuyable(t *testing.T) {
	l := NewHoldingLimiter(200)
	if got := l.MaxBuyable(0, supply); got != supply/50 {
		t.Errorf("expected %d, got %d", uint64(supply/50), got)
	}
	if got := l.MaxBuyable(supply, supply); got != 0 {
		t.Errorf("expected 0 over the cap, got %d", got)
	}
	if got := NewHoldingLimiter(0).MaxBuyable(123, supply); got != supply {
		t.Errorf("disabled limiter: expected %d, got %d", uint64(supply), got)
	}
}
