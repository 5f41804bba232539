package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_GetSet(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()

	_, ok, err := c.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "k", "v", time.Minute))
	val, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", val)
}

func TestMemory_Expiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c := NewMemory()
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, "k", "v", time.Minute))

	// WHEN: Just before expiry
	now = now.Add(59 * time.Second)
	_, ok, _ := c.Get(ctx, "k")
	assert.True(t, ok)

	// WHEN: At expiry
	now = now.Add(time.Second)
	_, ok, _ = c.Get(ctx, "k")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len(), "expired entry should be dropped")
}

func TestMemory_ZeroTTLNeverExpires(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c := NewMemory()
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, "k", "v", 0))
	now = now.Add(24 * 365 * time.Hour)

	val, ok, _ := c.Get(ctx, "k")
	assert.True(t, ok)
	assert.Equal(t, "v", val)
}

func TestMemory_SetSweepsUnreadExpiredEntries(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c := NewMemory()
	c.now = func() time.Time { return now }

	// GIVEN: Many short-lived keys that are never read again
	for i := 0; i < 100; i++ {
		require.NoError(t, c.Set(ctx, fmt.Sprintf("quote:%d", i), "v", time.Second))
	}
	require.NoError(t, c.Set(ctx, "pinned", "v", 0))
	assert.Equal(t, 101, c.Len())

	// WHEN: They expire and a later write arrives after the sweep interval
	now = now.Add(DefaultSweepInterval + time.Second)
	require.NoError(t, c.Set(ctx, "fresh", "v", time.Minute))

	// THEN: Only live entries remain, without any reads
	assert.Equal(t, 2, c.Len())
	_, ok, _ := c.Get(ctx, "pinned")
	assert.True(t, ok)
}

func TestMemory_SweepIsRateLimited(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c := NewMemory()
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, "a", "v", time.Second))
	now = now.Add(2 * time.Second)

	// Within the interval since the first sweep, expired keys stay until read
	require.NoError(t, c.Set(ctx, "b", "v", time.Hour))
	assert.Equal(t, 2, c.Len())

	now = now.Add(DefaultSweepInterval)
	require.NoError(t, c.Set(ctx, "c", "v", time.Hour))
	assert.Equal(t, 2, c.Len())
}

func TestRedis_GetSet(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	c, err := NewRedis(ctx, mr.Addr(), "coop:")
	require.NoError(t, err)
	defer c.Close()

	_, ok, err := c.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "k", "v", time.Minute))
	val, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", val)

	// Prefix is applied to stored keys
	assert.True(t, mr.Exists("coop:k"))
}

func TestRedis_TTLExpires(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	c, err := NewRedis(ctx, mr.Addr(), "")
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Set(ctx, "k", "v", time.Minute))
	mr.FastForward(2 * time.Minute)

	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedis_UnreachableServer(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedis(context.Background(), addr, "")
	assert.Error(t, err)
}
