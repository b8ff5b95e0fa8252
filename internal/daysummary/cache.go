package daysummary

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const bumpChannel = "daysummary.bump"

// Cache stores day snapshots in Redis under a per-date version so a finalize
// or adjustment only has to bump the version of its date.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache instantiates the cache helper. A nil client disables caching.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func versionKey(date time.Time) string {
	return "daysummary:version:" + date.Format(time.DateOnly)
}

// Version returns the current version of a date, initialising when missing.
func (c *Cache) Version(ctx context.Context, date time.Time) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, versionKey(date)).Int64()
	if errors.Is(err, redis.Nil) {
		// SETNX so two first readers agree on the version.
		if err := c.client.SetNX(ctx, versionKey(date), 1, 0).Err(); err != nil {
			return 0, err
		}
		return c.client.Get(ctx, versionKey(date)).Int64()
	}
	return ver, err
}

// Key composes the snapshot key of a date at its current version.
func (c *Cache) Key(ctx context.Context, date time.Time) (string, error) {
	ver, err := c.Version(ctx, date)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("daysummary:%s:%d", date.Format(time.DateOnly), ver), nil
}

// FetchJSON loads a cached value or populates it using the loader.
func (c *Cache) FetchJSON(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) error {
	if loader == nil {
		return errors.New("daysummary: loader required")
	}
	if c != nil && c.client != nil {
		payload, err := c.client.Get(ctx, key).Bytes()
		if err == nil {
			return json.Unmarshal(payload, dest)
		}
		if !errors.Is(err, redis.Nil) {
			return err
		}
	}
	value, err := loader(ctx)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if c != nil && c.client != nil {
		if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			return err
		}
	}
	return json.Unmarshal(raw, dest)
}

// Bump invalidates the snapshot of a date and publishes the new version.
func (c *Cache) Bump(ctx context.Context, date time.Time) error {
	if c == nil || c.client == nil {
		return nil
	}
	ver, err := c.client.Incr(ctx, versionKey(date)).Result()
	if err != nil {
		return err
	}
	return c.client.Publish(ctx, bumpChannel, date.Format(time.DateOnly)+"@"+strconv.FormatInt(ver, 10)).Err()
}
