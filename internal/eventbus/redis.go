package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisChannel = "habitvoice:events"

// RedisBus publishes through Redis pub/sub. Every instance, including the
// publisher, delivers to its local subscribers from the channel.
type RedisBus struct {
	*Hub
	client *redis.Client
	pubsub *redis.PubSub
	done   chan struct{}
}

func NewRedisBus(ctx context.Context, url string, logger *log.Logger) (*RedisBus, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	pubsub := client.Subscribe(ctx, redisChannel)
	if _, err := pubsub.Receive(pctx); err != nil {
		pubsub.Close()
		client.Close()
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	b := &RedisBus{
		Hub:    NewHub(logger),
		client: client,
		pubsub: pubsub,
		done:   make(chan struct{}),
	}
	go b.run()
	logger.Printf("eventbus: using redis channel %s", redisChannel)
	return b, nil
}

func (b *RedisBus) run() {
	defer close(b.done)
	for msg := range b.pubsub.Channel() {
		b.deliverPayload([]byte(msg.Payload))
	}
}

func (b *RedisBus) Publish(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, redisChannel, data).Err()
}

func (b *RedisBus) Close() error {
	err := b.pubsub.Close()
	<-b.done
	b.Hub.Close()
	if cerr := b.client.Close(); err == nil {
		err = cerr
	}
	return err
}
