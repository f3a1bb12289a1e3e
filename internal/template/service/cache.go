package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/threatdocs/threatdocs-backend/internal/template/domain"
	"github.com/threatdocs/threatdocs-backend/pkg/logger"
)

// LayeredMatchCache fronts the relational match cache with an optional
// Redis fast path. Redis failures degrade to the relational store and
// are logged, never surfaced.
type LayeredMatchCache struct {
	store  MatchStore
	redis  *redis.Client
	ttl    time.Duration
	logger *logger.Logger
}

// NewLayeredMatchCache creates a layered cache. client may be nil to
// run on the relational store alone.
func NewLayeredMatchCache(store MatchStore, client *redis.Client, ttl time.Duration, log *logger.Logger) *LayeredMatchCache {
	return &LayeredMatchCache{
		store:  store,
		redis:  client,
		ttl:    ttl,
		logger: log,
	}
}

func matchCacheKey(fp domain.Fingerprint, templateID string) string {
	return "match:" + string(fp) + ":" + templateID
}

// Get checks Redis first, then the relational store. Relational hits
// are written back to Redis.
func (c *LayeredMatchCache) Get(ctx context.Context, fp domain.Fingerprint, templateID string) (*domain.DocumentTemplateMatch, error) {
	if c.redis != nil {
		raw, err := c.redis.Get(ctx, matchCacheKey(fp, templateID)).Bytes()
		if err == nil {
			var entry domain.DocumentTemplateMatch
			if err := json.Unmarshal(raw, &entry); err == nil {
				return &entry, nil
			}
		} else if err != redis.Nil {
			c.logger.Warn().Err(err).Msg("redis match cache read failed")
		}
	}

	entry, err := c.store.Get(ctx, fp, templateID)
	if err != nil || entry == nil {
		return entry, err
	}
	c.writeRedis(ctx, entry)
	return entry, nil
}

// Put writes through to the relational store and then Redis
func (c *LayeredMatchCache) Put(ctx context.Context, entry *domain.DocumentTemplateMatch) error {
	if err := c.store.Put(ctx, entry); err != nil {
		return err
	}
	c.writeRedis(ctx, entry)
	return nil
}

func (c *LayeredMatchCache) writeRedis(ctx context.Context, entry *domain.DocumentTemplateMatch) {
	if c.redis == nil {
		return
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return
	}
	ttl := c.ttl
	if remaining := time.Until(entry.ExpiresAt); remaining > 0 && remaining < ttl {
		ttl = remaining
	}
	key := matchCacheKey(entry.Fingerprint, entry.TemplateID)
	if err := c.redis.Set(ctx, key, raw, ttl).Err(); err != nil {
		c.logger.Warn().Err(err).Msg("redis match cache write failed")
	}
}

// InvalidateTemplate drops cached entries for a template after it
// changes. Redis keys are found by scan; the relational rows by a
// single update.
func (c *LayeredMatchCache) InvalidateTemplate(ctx context.Context, templateID string) error {
	type invalidator interface {
		InvalidateTemplate(ctx context.Context, templateID string) error
	}
	if inv, ok := c.store.(invalidator); ok {
		if err := inv.InvalidateTemplate(ctx, templateID); err != nil {
			return err
		}
	}

	if c.redis != nil {
		iter := c.redis.Scan(ctx, 0, "match:*:"+templateID, 100).Iterator()
		var keys []string
		for iter.Next(ctx) {
			keys = append(keys, iter.Val())
		}
		if err := iter.Err(); err != nil {
			c.logger.Warn().Err(err).Msg("redis match cache scan failed")
		} else if len(keys) > 0 {
			if err := c.redis.Del(ctx, keys...).Err(); err != nil {
				c.logger.Warn().Err(err).Msg("redis match cache invalidation failed")
			}
		}
	}
	return nil
}
