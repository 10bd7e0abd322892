package popular

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// RedisTracker keeps view counts in a sorted set, member = article id.
type RedisTracker struct {
	client *redis.Client
	key    string
}

// NewRedisTracker connects to addr (host:port)
func NewRedisTracker(addr, key string) (*RedisTracker, error) {
	if key == "" {
		return nil, errors.New("redis key is empty")
	}
	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})
	return &RedisTracker{client: client, key: key}, nil
}

// NewRedisTrackerWithURL connects using a redis:// URL
func NewRedisTrackerWithURL(url, key string) (*RedisTracker, error) {
	if key == "" {
		return nil, errors.New("redis key is empty")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	return &RedisTracker{client: redis.NewClient(opts), key: key}, nil
}

// Ping checks the connection
func (r *RedisTracker) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (r *RedisTracker) Close() error {
	return r.client.Close()
}

func (r *RedisTracker) RecordView(ctx context.Context, articleID int64) error {
	if err := r.client.ZIncrBy(ctx, r.key, 1, strconv.FormatInt(articleID, 10)).Err(); err != nil {
		return fmt.Errorf("failed to record view for article %d: %w", articleID, err)
	}
	return nil
}

func (r *RedisTracker) TopArticleIDs(ctx context.Context, limit int) ([]int64, error) {
	if limit <= 0 {
		return nil, nil
	}
	members, err := r.client.ZRevRange(ctx, r.key, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to query top articles: %w", err)
	}
	ids := make([]int64, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			// not ours, skip
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Views returns the score of an article, 0 if never viewed
func (r *RedisTracker) Views(ctx context.Context, articleID int64) (int64, error) {
	score, err := r.client.ZScore(ctx, r.key, strconv.FormatInt(articleID, 10)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return int64(score), nil
}
