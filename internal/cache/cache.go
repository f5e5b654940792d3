// Package cache keeps course detail views in Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/learnhub/apiserver/config"
	"github.com/learnhub/apiserver/types"
	"github.com/redis/go-redis/v9"
)

const defaultTTL = 5 * time.Minute

func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
}

// CourseCache stores serialized course details keyed by course id.
type CourseCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewCourseCache(client *redis.Client, ttl time.Duration) *CourseCache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &CourseCache{client: client, ttl: ttl}
}

func courseKey(id string) string {
	return "course:" + id
}

// Get returns the cached detail and whether it was present.
func (c *CourseCache) Get(ctx context.Context, id string) (types.CourseDetail, bool, error) {
	data, err := c.client.Get(ctx, courseKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return types.CourseDetail{}, false, nil
		}
		return types.CourseDetail{}, false, err
	}
	var detail types.CourseDetail
	if err := json.Unmarshal(data, &detail); err != nil {
		return types.CourseDetail{}, false, err
	}
	return detail, true, nil
}

func (c *CourseCache) Set(ctx context.Context, detail types.CourseDetail) error {
	data, err := json.Marshal(detail)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, courseKey(detail.ID), data, c.ttl).Err()
}

func (c *CourseCache) Invalidate(ctx context.Context, id string) error {
	return c.client.Del(ctx, courseKey(id)).Err()
}

func (c *CourseCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *CourseCache) Close() error {
	return c.client.Close()
}
