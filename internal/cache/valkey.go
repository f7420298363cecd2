package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const portfolioKeyPrefix = "pacer:portfolio:"

type Config struct {
	Enabled  bool
	Addr     string
	Password string
}

// ValkeyClient shares computed portfolios between API replicas
type ValkeyClient struct {
	client *redis.Client
}

func NewValkeyClient(cfg Config) (*ValkeyClient, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           0,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		DialTimeout:  5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Valkey: %w", err)
	}

	return &ValkeyClient{client: rdb}, nil
}

func portfolioKey(asOf time.Time) string {
	return portfolioKeyPrefix + asOf.Format("2006-01-02")
}

// GetPortfolioRaw returns the cached portfolio JSON for a day, or nil on miss
func (v *ValkeyClient) GetPortfolioRaw(ctx context.Context, asOf time.Time) ([]byte, error) {
	raw, err := v.client.Get(ctx, portfolioKey(asOf)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("cache lookup error: %w", err)
	}
	return raw, nil
}

func (v *ValkeyClient) SetPortfolio(ctx context.Context, asOf time.Time, portfolio any, ttl time.Duration) error {
	payload, err := json.Marshal(portfolio)
	if err != nil {
		return fmt.Errorf("failed to marshal portfolio: %w", err)
	}
	if err := v.client.Set(ctx, portfolioKey(asOf), payload, ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache portfolio: %w", err)
	}
	return nil
}

// Invalidate drops every cached portfolio
func (v *ValkeyClient) Invalidate(ctx context.Context) error {
	iter := v.client.Scan(ctx, 0, portfolioKeyPrefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan portfolio keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := v.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to invalidate portfolio cache: %w", err)
	}
	return nil
}

func (v *ValkeyClient) Close() error {
	return v.client.Close()
}
