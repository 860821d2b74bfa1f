package redisclient

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"restoflow/internal/client"

	"github.com/go-redis/redis/v8"
)

// DefaultQuoteTTL bounds how long a cached delivery quote is served.
// DoorDash quotes expire provider-side after a few minutes.
const DefaultQuoteTTL = 5 * time.Minute

type Client struct {
	rdb *redis.Client
}

// NewClient creates a new Redis client
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// CacheQuote stores a delivery quote with a TTL
func (c *Client) CacheQuote(ctx context.Context, quote *client.Quote, ttl time.Duration) error {
	data, err := json.Marshal(quote)
	if err != nil {
		return fmt.Errorf("failed to marshal quote: %w", err)
	}
	key := fmt.Sprintf("quote:%s", quote.ExternalDeliveryID)
	return c.rdb.Set(ctx, key, data, ttl).Err()
}

// GetCachedQuote retrieves a cached delivery quote. Returns (nil, nil)
// on a cache miss.
func (c *Client) GetCachedQuote(ctx context.Context, externalDeliveryID string) (*client.Quote, error) {
	key := fmt.Sprintf("quote:%s", externalDeliveryID)

	data, err := c.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var quote client.Quote
	if err := json.Unmarshal(data, &quote); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached quote: %w", err)
	}
	return &quote, nil
}
