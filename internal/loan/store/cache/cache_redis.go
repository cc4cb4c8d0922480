package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"loanmanager/internal/loan/models"
	"loanmanager/pkg/domain"
)

const applicationKeyPrefix = "loan:app:"

// Source is the authoritative application lookup behind the cache.
type Source interface {
	FindByID(ctx context.Context, id domain.ApplicationID) (*models.Application, error)
}

// RedisCache is a read-through application cache. Redis failures degrade to
// reading the source; only source errors reach the caller.
type RedisCache struct {
	client *redis.Client
	source Source
	ttl    time.Duration
	logger *slog.Logger
}

type Option func(*RedisCache)

func WithTTL(ttl time.Duration) Option {
	return func(c *RedisCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *RedisCache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewRedis wraps source. A nil client turns the cache into a passthrough.
func NewRedis(client *redis.Client, source Source, opts ...Option) *RedisCache {
	c := &RedisCache{
		client: client,
		source: source,
		ttl:    5 * time.Minute,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

func (c *RedisCache) FindByID(ctx context.Context, id domain.ApplicationID) (*models.Application, error) {
	if c.client == nil {
		return c.source.FindByID(ctx, id)
	}
	key := applicationKeyPrefix + id.String()

	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var app models.Application
		if jsonErr := json.Unmarshal(raw, &app); jsonErr == nil {
			return &app, nil
		}
		c.logger.WarnContext(ctx, "discarding undecodable cache entry", "application_id", id.String())
	case !errors.Is(err, redis.Nil):
		c.logger.WarnContext(ctx, "application cache read failed", "application_id", id.String(), "error", err)
	}

	app, err := c.source.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	// A fill never replaces an entry; a writer may have stored a newer
	// version after this read.
	if encoded, jsonErr := json.Marshal(app); jsonErr == nil {
		if setErr := c.client.SetNX(ctx, key, encoded, c.ttl).Err(); setErr != nil {
			c.logger.WarnContext(ctx, "application cache write failed", "application_id", id.String(), "error", setErr)
		}
	}
	return app, nil
}

// putIfNewer stores ARGV[1] unless the cached entry already holds a version
// at or above ARGV[2]. Undecodable entries are overwritten.
var putIfNewer = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if cur then
  local ok, decoded = pcall(cjson.decode, cur)
  if ok and type(decoded) == 'table' and tonumber(decoded['version']) and tonumber(decoded['version']) >= tonumber(ARGV[2]) then
    return 0
  end
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[3])
return 1
`)

// Put writes app after a successful write to the store. Out-of-order puts
// keep the highest version.
func (c *RedisCache) Put(ctx context.Context, app *models.Application) error {
	if c.client == nil || app == nil {
		return nil
	}
	encoded, err := json.Marshal(app)
	if err != nil {
		return fmt.Errorf("encode application %s: %w", app.ID, err)
	}
	key := applicationKeyPrefix + app.ID.String()
	return putIfNewer.Run(ctx, c.client, []string{key}, encoded, app.Version, c.ttl.Milliseconds()).Err()
}

// Invalidate drops the cached copy of id.
func (c *RedisCache) Invalidate(ctx context.Context, id domain.ApplicationID) error {
	if c.client == nil {
		return nil
	}
	return c.client.Del(ctx, applicationKeyPrefix+id.String()).Err()
}
