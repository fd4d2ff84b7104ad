// Package cache keeps recently read countries in Redis keyed by name.
//
// Every name has a generation counter next to its cached row. Invalidate bumps
// the counter before dropping the row, and Fill only writes when the counter
// still holds the value read before the store lookup, so a slow reader cannot
// put back a row that a concurrent write already replaced.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"countries/internal/country/models"
	"countries/pkg/platform/sentinel"
)

const keyPrefix = "country:"

// KEYS[1] row, KEYS[2] generation; ARGV[1] json, ARGV[2] expected generation, ARGV[3] ttl ms.
var fillScript = redis.NewScript(`
local gen = redis.call('GET', KEYS[2]) or '0'
if gen ~= ARGV[2] then
	return 0
end
if tonumber(ARGV[3]) > 0 then
	redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[3])
else
	redis.call('SET', KEYS[1], ARGV[1])
end
return 1
`)

// Redis caches single-country lookups. A miss is reported as sentinel.ErrNotFound.
type Redis struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewRedis(client redis.Cmdable, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

// Both keys of a name share a hash tag so the fill script stays on one cluster slot.
func key(name string) string {
	return keyPrefix + "{" + name + "}"
}

func generationKey(name string) string {
	return key(name) + ":gen"
}

func (c *Redis) Get(ctx context.Context, name string) (*models.Country, error) {
	raw, err := c.client.Get(ctx, key(name)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("cache get: %w", err)
	}
	var country models.Country
	if err := json.Unmarshal(raw, &country); err != nil {
		return nil, fmt.Errorf("cache decode: %w", err)
	}
	return &country, nil
}

// Generation returns the invalidation count for name. Read it before the store
// lookup and hand it to Fill.
func (c *Redis) Generation(ctx context.Context, name string) (int64, error) {
	gen, err := c.client.Get(ctx, generationKey(name)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("cache generation: %w", err)
	}
	return gen, nil
}

// Fill caches country unless its name was invalidated after gen was read.
// A skipped fill is not an error.
func (c *Redis) Fill(ctx context.Context, country models.Country, gen int64) error {
	raw, err := json.Marshal(country)
	if err != nil {
		return fmt.Errorf("cache encode: %w", err)
	}
	keys := []string{key(country.Country), generationKey(country.Country)}
	err = fillScript.Run(ctx, c.client, keys, raw, strconv.FormatInt(gen, 10), c.ttl.Milliseconds()).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("cache fill: %w", err)
	}
	return nil
}

// Invalidate bumps the generation of every listed name and drops its row in
// one round trip.
func (c *Redis) Invalidate(ctx context.Context, names ...string) error {
	if len(names) == 0 {
		return nil
	}
	_, err := c.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, name := range names {
			pipe.Incr(ctx, generationKey(name))
			pipe.Del(ctx, key(name))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("cache invalidate: %w", err)
	}
	return nil
}
