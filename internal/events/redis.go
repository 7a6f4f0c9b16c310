package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Redis channels events are published on.
const (
	ChannelAllTrades = "trades:all"
	ChannelGraduated = "tokens:graduated"
	ChannelTokens    = "tokens:created"
)

// TokenChannel is the per-token trade channel.
func TokenChannel(tokenID string) string {
	return fmt.Sprintf("trades:token:%s", tokenID)
}

// RedisPublisher publishes events over Redis pub/sub.
type RedisPublisher struct {
	rdb *redis.Client
}

// NewRedisPublisher creates a publisher on an existing client.
func NewRedisPublisher(rdb *redis.Client) *RedisPublisher {
	return &RedisPublisher{rdb: rdb}
}

// Channels returns the channels an event is published on.
func Channels(ev TradeEvent) []string {
	switch ev.Type {
	case TypeTokenNew:
		return []string{ChannelTokens}
	case TypeGraduation:
		return []string{ChannelGraduated, TokenChannel(ev.TokenID)}
	}
	channels := []string{ChannelAllTrades, TokenChannel(ev.TokenID)}
	if ev.Graduated {
		channels = append(channels, ChannelGraduated)
	}
	return channels
}

// Publish sends the event to all of its channels in one pipeline.
func (p *RedisPublisher) Publish(ctx context.Context, ev TradeEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	pipe := p.rdb.Pipeline()
	for _, channel := range Channels(ev) {
		pipe.Publish(ctx, channel, data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis publish %s: %w", ev.Type, err)
	}
	return nil
}

// Subscribe delivers events from the given channels until ctx is done,
// together with the channel each arrived on. Undecodable payloads are
// skipped.
func (p *RedisPublisher) Subscribe(ctx context.Context, handler func(channel string, ev TradeEvent), channels ...string) error {
	sub := p.rdb.Subscribe(ctx, channels...)
	defer sub.Close()

	// Wait for the subscription to be confirmed so no message is missed.
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe: %w", err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev TradeEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				continue
			}
			handler(msg.Channel, ev)
		}
	}
}

// RelayChannels are the channels that together carry every event exactly
// once when filtered through Relay.
func RelayChannels() []string {
	return []string{ChannelAllTrades, ChannelTokens, ChannelGraduated}
}

// Relay returns a Subscribe handler that republishes events to dst. A trade
// that graduates its curve arrives on both the trade and graduation channels
// and is forwarded once, from the trade channel.
func Relay(ctx context.Context, dst Publisher, logger zerolog.Logger) func(string, TradeEvent) {
	return func(channel string, ev TradeEvent) {
		if channel == ChannelGraduated && ev.Type != TypeGraduation {
			return
		}
		if err := dst.Publish(ctx, ev); err != nil {
			logger.Warn().Err(err).Str("channel", channel).Msg("relay publish failed")
		}
	}
}
