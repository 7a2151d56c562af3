package realtime

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisPresence keeps the presence window in a sorted set scored by last
// activity in unix milliseconds, so several server instances share one count
type RedisPresence struct {
	client *redis.Client
	key    string
	window time.Duration
	now    func() time.Time
}

func NewRedisPresence(client *redis.Client, key string, window time.Duration, now func() time.Time) *RedisPresence {
	if now == nil {
		now = time.Now
	}
	return &RedisPresence{client: client, key: key, window: window, now: now}
}

// NewRedisClient parses a redis:// URL and checks the server is reachable
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}

func (p *RedisPresence) Touch(ctx context.Context, sessionID string) (bool, error) {
	now := p.now()

	var (
		score *redis.FloatCmd
		add   *redis.IntCmd
	)
	_, err := p.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		score = pipe.ZScore(ctx, p.key, sessionID)
		add = pipe.ZAdd(ctx, p.key, redis.Z{Score: float64(now.UnixMilli()), Member: sessionID})
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, fmt.Errorf("failed to touch session: %w", err)
	}
	if err := add.Err(); err != nil {
		return false, fmt.Errorf("failed to touch session: %w", err)
	}

	last, err := score.Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read session score: %w", err)
	}
	return now.Sub(time.UnixMilli(int64(last))) <= p.window, nil
}

func (p *RedisPresence) Prune(ctx context.Context) (int, error) {
	cutoff := p.cutoff()

	var card *redis.IntCmd
	_, err := p.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, p.key, "-inf", "("+cutoff)
		card = pipe.ZCard(ctx, p.key)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to prune presence window: %w", err)
	}
	return int(card.Val()), nil
}

func (p *RedisPresence) Count(ctx context.Context) (int, error) {
	n, err := p.client.ZCount(ctx, p.key, p.cutoff(), "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count presence window: %w", err)
	}
	return int(n), nil
}

// cutoff is the oldest score still inside the window
func (p *RedisPresence) cutoff() string {
	return strconv.FormatInt(p.now().Add(-p.window).UnixMilli(), 10)
}
