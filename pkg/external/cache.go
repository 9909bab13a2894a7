package external

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/clinical-trial-matcher/internal/domain"
)

// CachedTrials represents cached registry results with metadata
type CachedTrials struct {
	Trials    []domain.Trial `json:"trials"`
	CachedAt  time.Time      `json:"cached_at"`
	ExpiresAt time.Time      `json:"expires_at"`
}

// CacheStats represents cache performance statistics
type CacheStats struct {
	MemoryHits   int64 `json:"memory_hits"`
	MemoryMisses int64 `json:"memory_misses"`
	RedisHits    int64 `json:"redis_hits"`
	RedisMisses  int64 `json:"redis_misses"`
	Errors       int64 `json:"errors"`
}

// TrialCache memoizes registry responses in an in-memory LRU with an optional
// Redis tier behind it. Cached entries are returned as copies so callers can
// never observe each other's mutations.
type TrialCache struct {
	memory    *lru.Cache
	redis     *redis.Client
	ttl       time.Duration
	keyPrefix string
	logger    *logrus.Logger

	statsMu sync.Mutex
	stats   CacheStats
}

// NewTrialCache creates a cache from config. A Redis tier is attached when
// RedisURL is set and reachable.
func NewTrialCache(config domain.CacheConfig, logger *logrus.Logger) (*TrialCache, error) {
	if logger == nil {
		logger = logrus.New()
	}
	size := config.MemoryItems
	if size <= 0 {
		size = 500
	}
	memory, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("failed to create memory cache: %w", err)
	}
	ttl := config.TTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	prefix := config.KeyPrefix
	if prefix == "" {
		prefix = "trialmatch"
	}

	c := &TrialCache{
		memory:    memory,
		ttl:       ttl,
		keyPrefix: prefix,
		logger:    logger,
	}

	if config.RedisURL != "" {
		opts, err := redis.ParseURL(config.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
		}
		client := redis.NewClient(opts)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		c.redis = client
	}
	return c, nil
}

// Get returns cached trials for key.
func (c *TrialCache) Get(ctx context.Context, key string) ([]domain.Trial, bool) {
	hashed := c.hashKey(key)

	if v, ok := c.memory.Get(hashed); ok {
		entry := v.(CachedTrials)
		if time.Now().Before(entry.ExpiresAt) {
			c.record(func(s *CacheStats) { s.MemoryHits++ })
			return copyTrials(entry.Trials), true
		}
		c.memory.Remove(hashed)
	}
	c.record(func(s *CacheStats) { s.MemoryMisses++ })

	if c.redis == nil {
		return nil, false
	}

	val, err := c.redis.Get(ctx, hashed).Result()
	if err == redis.Nil {
		c.record(func(s *CacheStats) { s.RedisMisses++ })
		return nil, false
	}
	if err != nil {
		c.logger.WithError(err).Warn("Redis cache read failed")
		c.record(func(s *CacheStats) { s.Errors++ })
		return nil, false
	}

	var entry CachedTrials
	if err := json.Unmarshal([]byte(val), &entry); err != nil {
		c.redis.Del(ctx, hashed)
		return nil, false
	}
	if time.Now().After(entry.ExpiresAt) {
		c.redis.Del(ctx, hashed)
		c.record(func(s *CacheStats) { s.RedisMisses++ })
		return nil, false
	}

	c.memory.Add(hashed, entry)
	c.record(func(s *CacheStats) { s.RedisHits++ })
	return copyTrials(entry.Trials), true
}

// Set stores trials under key in every tier.
func (c *TrialCache) Set(ctx context.Context, key string, trials []domain.Trial) error {
	hashed := c.hashKey(key)
	now := time.Now()
	entry := CachedTrials{
		Trials:    copyTrials(trials),
		CachedAt:  now,
		ExpiresAt: now.Add(c.ttl),
	}
	c.memory.Add(hashed, entry)

	if c.redis == nil {
		return nil
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal cached trials: %w", err)
	}
	if err := c.redis.Set(ctx, hashed, data, c.ttl).Err(); err != nil {
		c.record(func(s *CacheStats) { s.Errors++ })
		return fmt.Errorf("failed to write Redis cache: %w", err)
	}
	return nil
}

// Stats returns a snapshot of cache statistics.
func (c *TrialCache) Stats() CacheStats {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	return c.stats
}

// Close releases the Redis connection, if any.
func (c *TrialCache) Close() error {
	if c.redis == nil {
		return nil
	}
	return c.redis.Close()
}

func (c *TrialCache) record(update func(*CacheStats)) {
	c.statsMu.Lock()
	update(&c.stats)
	c.statsMu.Unlock()
}

func (c *TrialCache) hashKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return fmt.Sprintf("%s:trials:%x", c.keyPrefix, hash[:16])
}

func copyTrials(trials []domain.Trial) []domain.Trial {
	out := make([]domain.Trial, len(trials))
	for i, t := range trials {
		t.Locations = append([]string(nil), t.Locations...)
		out[i] = t
	}
	return out
}
