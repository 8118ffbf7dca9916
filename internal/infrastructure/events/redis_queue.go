package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"workhub/internal/core/domain"
	"workhub/internal/core/ports"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultChannel is the pub/sub channel shared by API and realtime processes.
const DefaultChannel = "workhub:events"

// envelope is the wire format on the Redis channel.
type envelope struct {
	Event domain.Event `json:"event"`
}

// RedisQueue fans events out through Redis pub/sub so a separate realtime
// process can relay them. Delivery is at-most-once: subscribers that are not
// connected when an event is published never see it.
type RedisQueue struct {
	client  *redis.Client
	channel string
	logger  *zap.SugaredLogger
}

var _ ports.EventQueue = (*RedisQueue)(nil)

func NewRedisQueue(client *redis.Client, channel string, logger *zap.SugaredLogger) *RedisQueue {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisQueue{
		client:  client,
		channel: channel,
		logger:  logger,
	}
}

// NewRedisClient connects and pings within five seconds.
func NewRedisClient(ctx context.Context, address, password string, db, poolSize int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         address,
		Password:     password,
		DB:           db,
		PoolSize:     poolSize,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

func encodeEnvelope(event domain.Event) ([]byte, error) {
	return json.Marshal(envelope{Event: event})
}

func decodeEnvelope(data []byte) (envelope, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return envelope{}, err
	}
	if err := env.Event.Validate(); err != nil {
		return envelope{}, err
	}
	return env, nil
}

func (q *RedisQueue) Publish(ctx context.Context, event domain.Event) error {
	if err := event.Validate(); err != nil {
		return err
	}

	data, err := encodeEnvelope(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := q.client.Publish(ctx, q.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	q.logger.Debugw("published event", "kind", event.Kind, "rooms", event.Rooms)
	return nil
}

// Subscribe returns once ctx is done. Malformed messages are logged and skipped.
func (q *RedisQueue) Subscribe(ctx context.Context, handler ports.EventHandler) error {
	pubsub := q.client.Subscribe(ctx, q.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", q.channel, err)
	}
	q.logger.Infow("subscribed to event channel", "channel", q.channel)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("subscription to %s closed", q.channel)
			}
			env, err := decodeEnvelope([]byte(msg.Payload))
			if err != nil {
				q.logger.Warnw("dropping malformed event", "error", err, "payload", msg.Payload)
				continue
			}
			handler(ctx, env.Event)
		}
	}
}

func (q *RedisQueue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}
