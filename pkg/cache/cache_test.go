package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/statusflowhq/statusflow/pkg/models"
)

func TestMemory_RefreshAndRead(t *testing.T) {
	t.Parallel()

	cache := NewMemory()

	counts, err := cache.StatusCounts(t.Context(), "org-1", models.EntityTypeQuote)
	require.NoError(t, err)
	assert.Empty(t, counts, "a cold cache reads as empty, not as an error")

	require.NoError(t, cache.RefreshStatusCounts(t.Context(), "org-1", models.EntityTypeQuote,
		map[models.Status]int64{"draft": 2, "sent": 1}))

	counts, err = cache.StatusCounts(t.Context(), "org-1", models.EntityTypeQuote)
	require.NoError(t, err)
	assert.Equal(t, map[models.Status]int64{"draft": 2, "sent": 1}, counts)

	// Refresh replaces, it does not merge.
	require.NoError(t, cache.RefreshStatusCounts(t.Context(), "org-1", models.EntityTypeQuote,
		map[models.Status]int64{"accepted": 4}))

	counts, err = cache.StatusCounts(t.Context(), "org-1", models.EntityTypeQuote)
	require.NoError(t, err)
	assert.Equal(t, map[models.Status]int64{"accepted": 4}, counts)
}

func TestMemory_KeysAreOrgAndTypeScoped(t *testing.T) {
	t.Parallel()

	cache := NewMemory()

	require.NoError(t, cache.RefreshStatusCounts(t.Context(), "org-1", models.EntityTypeQuote,
		map[models.Status]int64{"draft": 1}))
	require.NoError(t, cache.RefreshStatusCounts(t.Context(), "org-1", models.EntityTypeProject,
		map[models.Status]int64{"planned": 3}))
	require.NoError(t, cache.RefreshStatusCounts(t.Context(), "org-2", models.EntityTypeQuote,
		map[models.Status]int64{"draft": 9}))

	counts, err := cache.StatusCounts(t.Context(), "org-1", models.EntityTypeQuote)
	require.NoError(t, err)
	assert.Equal(t, map[models.Status]int64{"draft": 1}, counts)

	counts, err = cache.StatusCounts(t.Context(), "org-1", models.EntityTypeProject)
	require.NoError(t, err)
	assert.Equal(t, map[models.Status]int64{"planned": 3}, counts)

	counts, err = cache.StatusCounts(t.Context(), "org-2", models.EntityTypeQuote)
	require.NoError(t, err)
	assert.Equal(t, map[models.Status]int64{"draft": 9}, counts)
}

func TestMemory_CopiesInBothDirections(t *testing.T) {
	t.Parallel()

	cache := NewMemory()

	source := map[models.Status]int64{"draft": 1}
	require.NoError(t, cache.RefreshStatusCounts(t.Context(), "org-1", models.EntityTypeQuote, source))

	// Mutating the caller's map after the refresh must not leak in.
	source["draft"] = 99

	counts, err := cache.StatusCounts(t.Context(), "org-1", models.EntityTypeQuote)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts["draft"])

	// Mutating a returned map must not touch the cached entry.
	counts["draft"] = 42

	counts, err = cache.StatusCounts(t.Context(), "org-1", models.EntityTypeQuote)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts["draft"])
}

func TestRedisCounterKey(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "statusflow:counters:org-1:quote", redisCounterKey("org-1", models.EntityTypeQuote))
	assert.Equal(t, "statusflow:counters:org-2:project", redisCounterKey("org-2", models.EntityTypeProject))
}

func TestNewRedis_TTLFloor(t *testing.T) {
	t.Parallel()

	assert.Equal(t, DefaultCounterTTL, NewRedis(nil, 0).ttl)
	assert.Equal(t, DefaultCounterTTL, NewRedis(nil, -time.Minute).ttl)
	assert.Equal(t, time.Hour, NewRedis(nil, time.Hour).ttl)
}
