package external

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinical-trial-matcher/internal/domain"
)

func sampleTrials() []domain.Trial {
	return []domain.Trial{
		{NCTID: nct(1), Title: "A", Locations: []string{"Austin, TX"}},
		{NCTID: nct(2), Title: "B"},
	}
}

func TestTrialCacheMemoryTier(t *testing.T) {
	cache, err := NewTrialCache(domain.CacheConfig{MemoryItems: 10, TTL: time.Minute}, quietLogger())
	require.NoError(t, err)
	ctx := context.Background()

	_, ok := cache.Get(ctx, "k")
	assert.False(t, ok)

	require.NoError(t, cache.Set(ctx, "k", sampleTrials()))
	got, ok := cache.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, sampleTrials(), got)

	// Mutating a returned copy must not leak into the cache.
	got[0].Locations[0] = "changed"
	again, _ := cache.Get(ctx, "k")
	assert.Equal(t, "Austin, TX", again[0].Locations[0])

	stats := cache.Stats()
	assert.Equal(t, int64(2), stats.MemoryHits)
	assert.Equal(t, int64(1), stats.MemoryMisses)
}

func TestTrialCacheRedisTier(t *testing.T) {
	mr := miniredis.RunT(t)
	config := domain.CacheConfig{MemoryItems: 10, TTL: time.Minute, RedisURL: "redis://" + mr.Addr()}
	ctx := context.Background()

	writer, err := NewTrialCache(config, quietLogger())
	require.NoError(t, err)
	defer writer.Close()
	require.NoError(t, writer.Set(ctx, "shared", sampleTrials()))
	assert.Len(t, mr.Keys(), 1)

	// A second process with a cold memory tier reads through Redis.
	reader, err := NewTrialCache(config, quietLogger())
	require.NoError(t, err)
	defer reader.Close()

	got, ok := reader.Get(ctx, "shared")
	require.True(t, ok)
	assert.Equal(t, sampleTrials(), got)
	assert.Equal(t, int64(1), reader.Stats().RedisHits)

	_, ok = reader.Get(ctx, "missing")
	assert.False(t, ok)
	assert.Equal(t, int64(1), reader.Stats().RedisMisses)
}

func TestTrialCacheRedisUnreachable(t *testing.T) {
	_, err := NewTrialCache(domain.CacheConfig{RedisURL: "redis://127.0.0.1:1"}, quietLogger())
	assert.Error(t, err)

	_, err = NewTrialCache(domain.CacheConfig{RedisURL: "::not-a-url"}, quietLogger())
	assert.Error(t, err)
}
