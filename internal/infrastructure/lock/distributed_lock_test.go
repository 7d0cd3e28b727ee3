package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestDistributedLock_MutualExclusion(t *testing.T) {
	_, client := newRedis(t)
	ctx := context.Background()

	first := NewSubmitLock(client, 1)
	second := NewSubmitLock(client, 1)
	other := NewSubmitLock(client, 2)

	ok, err := first.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = second.TryLock(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "same user must contend")

	ok, err = other.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, ok, "different users never contend")

	require.NoError(t, first.Unlock(ctx))
	ok, err = second.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDistributedLock_UnlockKeepsForeignLock(t *testing.T) {
	mr, client := newRedis(t)
	ctx := context.Background()

	stale := NewDistributedLock(client, "k", "owner-a", time.Second)
	ok, err := stale.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)

	current := NewDistributedLock(client, "k", "owner-b", time.Minute)
	ok, err = current.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, stale.Unlock(ctx))
	got, err := mr.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "owner-b", got)
}

func TestDistributedLock_LockGivesUp(t *testing.T) {
	_, client := newRedis(t)
	ctx := context.Background()

	holder := NewDistributedLock(client, "busy", "a", time.Minute)
	ok, err := holder.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	waiter := NewDistributedLock(client, "busy", "b", time.Minute)
	err = waiter.Lock(ctx, time.Millisecond, 3)
	assert.ErrorIs(t, err, ErrLockFailed)
}
