// Package redisrelay carries events between forum instances over a Redis channel.
// Every instance publishes to the channel and forwards whatever it receives to its
// own websocket hub, so subscribers see mutations handled by any instance.
package redisrelay

import (
	"context"
	"errors"
	"fmt"

	"github.com/ButyrinIA/forum/internal/events"
	"github.com/redis/rueidis"
	"go.uber.org/zap"
)

// Broadcaster is the local fan-out the relay feeds. *realtime.Hub satisfies it.
type Broadcaster interface {
	Broadcast(data []byte) int
}

type Relay struct {
	client  rueidis.Client
	channel string
	local   Broadcaster
	logger  *zap.Logger
}

var _ events.Publisher = (*Relay)(nil)

func New(client rueidis.Client, channel string, local Broadcaster, logger *zap.Logger) *Relay {
	return &Relay{
		client:  client,
		channel: channel,
		local:   local,
		logger:  logger.Named("relay").With(zap.String("channel", channel)),
	}
}

// Publish sends the event to every instance, this one included.
func (r *Relay) Publish(ctx context.Context, event events.Event) error {
	data, err := events.Encode(event)
	if err != nil {
		return err
	}
	cmd := r.client.B().Publish().Channel(r.channel).Message(string(data)).Build()
	if err := r.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("publish %s: %w", event.Name, err)
	}
	return nil
}

// Run subscribes to the channel and forwards each envelope to the local hub until
// ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	r.logger.Info("relay subscribed")
	err := r.client.Receive(ctx, r.client.B().Subscribe().Channel(r.channel).Build(), func(msg rueidis.PubSubMessage) {
		env, err := events.Decode([]byte(msg.Message))
		if err != nil {
			r.logger.Warn("discarding malformed envelope", zap.Error(err))
			return
		}
		n := r.local.Broadcast([]byte(msg.Message))
		r.logger.Debug("relayed event", zap.String("event", env.Event), zap.Int("clients", n))
	})
	if ctx.Err() != nil && (err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("receive on %s: %w", r.channel, err)
	}
	return nil
}
