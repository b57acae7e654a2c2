package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"seatlock/internal/leases"
	"seatlock/internal/shared/constants"
	"seatlock/pkg/logger"

	"github.com/redis/go-redis/v9"
)

// RedisRelay carries show events between API instances. Publish goes to
// redis; Run feeds every instance's local Hub from the shared channel.
type RedisRelay struct {
	client *redis.Client
	hub    *Hub
	ready  chan struct{}
}

func NewRedisRelay(client *redis.Client, hub *Hub) *RedisRelay {
	return &RedisRelay{client: client, hub: hub, ready: make(chan struct{})}
}

// Ready is closed once the pattern subscription is established
func (r *RedisRelay) Ready() <-chan struct{} {
	return r.ready
}

// Publish sends ev on the show's channel. If redis is unreachable the event
// still reaches this instance's subscribers.
func (r *RedisRelay) Publish(ctx context.Context, showID string, ev leases.Event) {
	data, err := json.Marshal(ev)
	if err == nil {
		err = r.client.Publish(ctx, constants.BuildShowChannel(showID), data).Err()
	}
	if err != nil {
		logger.GetDefault().WarnContext(ctx, "relay publish failed, delivering locally", "show_id", showID, "error", err)
		r.hub.Publish(ctx, showID, ev)
	}
}

// Run blocks until ctx is cancelled
func (r *RedisRelay) Run(ctx context.Context) error {
	ps := r.client.PSubscribe(ctx, constants.LEASE_CHANNEL_PREFIX+"*")
	defer ps.Close()

	if _, err := ps.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to show channels: %w", err)
	}
	close(r.ready)
	logger.GetDefault().Info("show event relay subscribed", "pattern", constants.LEASE_CHANNEL_PREFIX+"*")

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			showID := strings.TrimPrefix(msg.Channel, constants.LEASE_CHANNEL_PREFIX)
			var ev leases.Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				logger.GetDefault().Warn("discarding malformed show event", "channel", msg.Channel, "error", err)
				continue
			}
			r.hub.Publish(ctx, showID, ev)
		}
	}
}
