// Package redis publishes bot events to a Redis stream so dashboards and
// alerting consumers can follow the bot without touching its hot path.
package redis

import (
	"context"
	"fmt"
	"log"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"contractbot/internal/model"
)

const (
	// Stream trimming: roughly a day of events with headroom
	eventStreamMaxLen = 50000
)

// PublisherConfig configures the Redis event publisher.
type PublisherConfig struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
	Stream   string // stream key, e.g. "bot:events"
}

// Publisher appends events to a capped Redis stream and mirrors them on a
// pub/sub channel for live dashboards.
type Publisher struct {
	client *goredis.Client
	stream string
}

// Client returns the underlying Redis client for health checks.
func (p *Publisher) Client() *goredis.Client { return p.client }

// New creates a new Publisher and pings the server.
func New(cfg PublisherConfig) (*Publisher, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	stream := cfg.Stream
	if stream == "" {
		stream = "bot:events"
	}

	log.Printf("[redis] connected to %s, publishing to %s", cfg.Addr, stream)
	return &Publisher{client: client, stream: stream}, nil
}

// Publish appends one event to the stream. Errors are logged, not returned:
// monitoring must never stall the trading loop.
func (p *Publisher) Publish(ctx context.Context, ev model.Event) {
	data := ev.JSON()

	pipe := p.client.Pipeline()
	pipe.XAdd(ctx, &goredis.XAddArgs{
		Stream: p.stream,
		MaxLen: eventStreamMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"type": string(ev.Type),
			"data": data,
		},
	})
	pipe.Publish(ctx, p.stream+":live", data)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("[redis] publish error: %v", err)
	}
}

// Close releases the client connection.
func (p *Publisher) Close() error {
	return p.client.Close()
}
