// Package events fans trade and graduation events out to WebSocket clients
// and Redis subscribers.
package events

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/atmx/curve-engine/internal/bondingcurve"
)

// Event types.
const (
	TypeTrade      = "trade"
	TypeGraduation = "graduation"
	TypeTokenNew   = "token_created"
)

// TradeEvent is the message published after a state change on a curve.
type TradeEvent struct {
	Type      string            `json:"type"`
	TokenID   string            `json:"token_id"`
	Mint      string            `json:"mint"`
	Side      bondingcurve.Side `json:"side,omitempty"`
	UserID    string            `json:"user_id,omitempty"`
	AmountIn  uint64            `json:"amount_in,string"`
	AmountOut uint64            `json:"amount_out,string"`
	Price     decimal.Decimal   `json:"price"`
	MarketCap decimal.Decimal   `json:"market_cap"`
	Progress  decimal.Decimal   `json:"progress"`
	Graduated bool              `json:"graduated"`
	Timestamp time.Time         `json:"timestamp"`
}

// Publisher delivers events to one destination.
type Publisher interface {
	Publish(ctx context.Context, ev TradeEvent) error
}

// Fanout publishes to every destination. Individual failures are logged and
// joined into the returned error; one slow or broken sink never stops the
// others.
type Fanout struct {
	publishers []Publisher
	logger     zerolog.Logger
}

// NewFanout combines publishers; nil entries are skipped.
func NewFanout(logger zerolog.Logger, publishers ...Publisher) *Fanout {
	f := &Fanout{logger: logger}
	for _, p := range publishers {
		if p != nil {
			f.publishers = append(f.publishers, p)
		}
	}
	return f
}

func (f *Fanout) Publish(ctx context.Context, ev TradeEvent) error {
	var errs []error
	for _, p := range f.publishers {
		if err := p.Publish(ctx, ev); err != nil {
			f.logger.Warn().Err(err).
				Str("type", ev.Type).
				Str("token_id", ev.TokenID).
				Msg("publish event failed")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops every event.
type Discard struct{}

func (Discard) Publish(context.Context, TradeEvent) error { return nil }
