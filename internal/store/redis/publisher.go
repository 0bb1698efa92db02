// Package redis broadcasts trading activity to Redis streams so dashboards
// and oversight tooling can follow the bot live. Publishing is best-effort;
// the bot trades normally when Redis is absent.
package redis

import (
	"context"
	"fmt"
	"log"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"github.com/jerbotron/binance-bot/internal/model"
)

const (
	// Stream trimming: ~1 day of 1m candles + buffer.
	candleStreamMaxLen = 1600
	tradeStreamMaxLen  = 1000
	defaultLatestTTL   = 30 * time.Minute
)

// Config configures the publisher.
type Config struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
}

// Publisher writes candles, decisions, and fills to Redis.
type Publisher struct {
	client *goredis.Client
}

// Client returns the underlying Redis client for health checks.
func (p *Publisher) Client() *goredis.Client { return p.client }

// New creates a Publisher and pings the server.
func New(cfg Config) (*Publisher, error) {
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

	log.Printf("[redis] connected to %s", cfg.Addr)
	return &Publisher{client: client}, nil
}

// PublishCandle writes one processed candle: SET latest + XADD + PUBLISH.
func (p *Publisher) PublishCandle(ctx context.Context, c model.Candle) {
	latestKey := "tradebot:candle:latest:" + c.Symbol
	streamKey := "tradebot:candles:" + c.Symbol
	pubsubCh := "pub:tradebot:candles:" + c.Symbol
	jsonData := string(c.JSON())

	pipe := p.client.Pipeline()
	pipe.Set(ctx, latestKey, jsonData, defaultLatestTTL)
	pipe.XAdd(ctx, &goredis.XAddArgs{
		Stream: streamKey,
		MaxLen: candleStreamMaxLen,
		Approx: true,
		Values: map[string]interface{}{"data": jsonData},
	})
	pipe.Publish(ctx, pubsubCh, jsonData)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("[redis] candle pipeline error: %v", err)
	}
}

// PublishDecision writes one trade decision to the decision stream.
func (p *Publisher) PublishDecision(ctx context.Context, d model.TradeDecision) {
	jsonData := string(d.JSON())
	streamKey := "tradebot:decisions:" + d.Symbol

	pipe := p.client.Pipeline()
	pipe.XAdd(ctx, &goredis.XAddArgs{
		Stream: streamKey,
		MaxLen: tradeStreamMaxLen,
		Approx: true,
		Values: map[string]interface{}{"data": jsonData},
	})
	pipe.Publish(ctx, "pub:tradebot:decisions:"+d.Symbol, jsonData)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("[redis] decision pipeline error: %v", err)
	}
}

// PublishFill writes one confirmed fill to the order stream.
func (p *Publisher) PublishFill(ctx context.Context, f model.FillReport) {
	jsonData := string(f.JSON())
	streamKey := "tradebot:orders:" + f.Symbol

	pipe := p.client.Pipeline()
	pipe.XAdd(ctx, &goredis.XAddArgs{
		Stream: streamKey,
		MaxLen: tradeStreamMaxLen,
		Approx: true,
		Values: map[string]interface{}{"data": jsonData},
	})
	pipe.Set(ctx, "tradebot:order:latest:"+f.Symbol, jsonData, defaultLatestTTL)
	pipe.Publish(ctx, "pub:tradebot:orders:"+f.Symbol, jsonData)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("[redis] fill pipeline error: %v", err)
	}
}

// Close releases the Redis connection.
func (p *Publisher) Close() error {
	return p.client.Close()
}
