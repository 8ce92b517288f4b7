package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"

	"vendorrisk/internal/config"
	"vendorrisk/internal/model"
)

// Publisher pushes simulation snapshots to subscribers outside the process.
type Publisher interface {
	Publish(ctx context.Context, state model.State) error
	Close() error
}

// RedisPublisher stores the latest snapshot under a key and announces it on
// a pub/sub channel.
type RedisPublisher struct {
	client  *redis.Client
	key     string
	channel string
}

func NewRedisPublisher(cfg config.RedisConfig) (*RedisPublisher, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = "127.0.0.1:6379"
	}
	if strings.TrimSpace(cfg.Key) == "" {
		cfg.Key = "vendorrisk:simulation:state"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis publisher: %w", err)
	}
	return &RedisPublisher{client: client, key: cfg.Key, channel: strings.TrimSpace(cfg.Channel)}, nil
}

func (p *RedisPublisher) Publish(ctx context.Context, state model.State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	pipe := p.client.TxPipeline()
	pipe.Set(ctx, p.key, data, 0)
	if p.channel != "" {
		pipe.Publish(ctx, p.channel, data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish snapshot: %w", err)
	}
	return nil
}

func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
