package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"fvg-liquidity-bot/internal/market"
)

// CandleCache keeps recent candle windows in Redis so a restart can resume
// analysis without waiting for a full REST backfill. Entries expire on their
// own; the cache is best-effort and never blocks the trading loop.
type CandleCache struct {
	client *redis.Client
	ttl    time.Duration
	log    zerolog.Logger
}

// Config holds Redis connection parameters.
type Config struct {
	Address  string
	Password string
	DB       int
}

// New connects to Redis and verifies the connection.
func New(cfg Config, log zerolog.Logger) (*CandleCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Info().Str("address", cfg.Address).Msg("connected to Redis")
	return &CandleCache{
		client: client,
		ttl:    time.Hour,
		log:    log,
	}, nil
}

func candleKey(symbol, interval string) string {
	return fmt.Sprintf("candles:%s:%s", symbol, interval)
}

// Put stores a candle window.
func (cc *CandleCache) Put(ctx context.Context, symbol, interval string, candles []market.Candle) {
	data, err := json.Marshal(candles)
	if err != nil {
		return
	}
	if err := cc.client.Set(ctx, candleKey(symbol, interval), data, cc.ttl).Err(); err != nil {
		cc.log.Warn().Err(err).Str("symbol", symbol).Msg("candle cache write failed")
	}
}

// Get returns a cached candle window, or nil when absent or unreadable.
func (cc *CandleCache) Get(ctx context.Context, symbol, interval string) []market.Candle {
	data, err := cc.client.Get(ctx, candleKey(symbol, interval)).Bytes()
	if err != nil {
		return nil
	}

	var candles []market.Candle
	if err := json.Unmarshal(data, &candles); err != nil {
		cc.log.Warn().Err(err).Str("symbol", symbol).Msg("candle cache entry corrupt")
		return nil
	}
	return candles
}

// Close releases the Redis connection.
func (cc *CandleCache) Close() error {
	return cc.client.Close()
}
