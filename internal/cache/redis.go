package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"

	"logistrans/internal/model"
)

// Redis caches the latest location per route as a JSON value with a TTL.
type Redis struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedis(url string, ttl time.Duration) (*Redis, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	return &Redis{rdb: redis.NewClient(opt), ttl: ttl}, nil
}

func (c *Redis) Put(ctx context.Context, loc model.Location) error {
	if loc.RouteID == uuid.Nil {
		return nil
	}
	data, err := json.Marshal(loc)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, latestKey(loc.RouteID), data, c.ttl).Err()
}

func (c *Redis) Latest(ctx context.Context, routeID uuid.UUID) (model.Location, bool, error) {
	data, err := c.rdb.Get(ctx, latestKey(routeID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.Location{}, false, nil
	}
	if err != nil {
		return model.Location{}, false, err
	}
	var loc model.Location
	if err := json.Unmarshal(data, &loc); err != nil {
		return model.Location{}, false, fmt.Errorf("decode cached location: %w", err)
	}
	return loc, true, nil
}

func (c *Redis) Ping(ctx context.Context) error { return c.rdb.Ping(ctx).Err() }

func (c *Redis) Close() error { return c.rdb.Close() }

func latestKey(routeID uuid.UUID) string { return "location:latest:" + routeID.String() }
