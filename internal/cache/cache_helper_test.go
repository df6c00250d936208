package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cachedTask struct {
	ID    uint   `json:"id"`
	Title string `json:"title"`
}

func newTestManager(t *testing.T) (*CacheManager, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCacheManager(client), mr
}

func TestCacheHelper_SetGet(t *testing.T) {
	cm, mr := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, cm.Task.Set(ctx, "id:1", cachedTask{ID: 1, Title: "Fractions"}, time.Minute))
	assert.True(t, mr.Exists("task:id:1"))

	var got cachedTask
	require.NoError(t, cm.Task.Get(ctx, "id:1", &got))
	assert.Equal(t, "Fractions", got.Title)

	err := cm.Task.Get(ctx, "id:2", &got)
	assert.ErrorIs(t, err, ErrCacheNotFound)
}

func TestCacheHelper_SetIfAbsent(t *testing.T) {
	cm, _ := newTestManager(t)
	ctx := context.Background()

	ok, err := cm.Session.SetIfAbsent(ctx, "active:s1:7", "first", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = cm.Session.SetIfAbsent(ctx, "active:s1:7", "second", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	var owner string
	require.NoError(t, cm.Session.Get(ctx, "active:s1:7", &owner))
	assert.Equal(t, "first", owner)
}

func TestCacheHelper_Expiry(t *testing.T) {
	cm, mr := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, cm.Idempotency.Set(ctx, "abc", 42, time.Minute))
	mr.FastForward(2 * time.Minute)

	var id int
	assert.ErrorIs(t, cm.Idempotency.Get(ctx, "abc", &id), ErrCacheNotFound)
}

func TestCacheHelper_NilClient(t *testing.T) {
	cm := NewCacheManager(nil)
	ctx := context.Background()

	assert.NoError(t, cm.Task.Set(ctx, "id:1", cachedTask{ID: 1}, time.Minute))
	assert.ErrorIs(t, cm.Task.Get(ctx, "id:1", &cachedTask{}), ErrCacheNotAvailable)
	assert.ErrorIs(t, cm.HealthCheck(ctx), ErrCacheNotAvailable)

	ok, err := cm.Session.SetIfAbsent(ctx, "k", "v", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCacheHelper_CacheOrExecute(t *testing.T) {
	cm, mr := newTestManager(t)
	ctx := context.Background()

	calls := 0
	fetch := func() (interface{}, error) {
		calls++
		return cachedTask{ID: 9, Title: "Video"}, nil
	}

	var got cachedTask
	require.NoError(t, cm.Task.CacheOrExecute(ctx, "id:9", &got, time.Minute, fetch))
	assert.Equal(t, uint(9), got.ID)
	assert.Equal(t, 1, calls)

	// the write-back is asynchronous
	assert.Eventually(t, func() bool {
		return mr.Exists("task:id:9")
	}, time.Second, 10*time.Millisecond)

	var again cachedTask
	require.NoError(t, cm.Task.CacheOrExecute(ctx, "id:9", &again, time.Minute, fetch))
	assert.Equal(t, 1, calls)

	failing := func() (interface{}, error) { return nil, errors.New("db down") }
	assert.Error(t, cm.Task.CacheOrExecute(ctx, "id:10", &again, time.Minute, failing))
}

func TestInvalidateTaskCache(t *testing.T) {
	cm, mr := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, cm.Task.Set(ctx, "id:3", cachedTask{ID: 3}, time.Minute))
	require.NoError(t, cm.Task.Set(ctx, "3:submissions", []int{1}, time.Minute))
	require.NoError(t, cm.Task.Set(ctx, "4:submissions", []int{2}, time.Minute))

	InvalidateTaskCache(ctx, cm, 3)

	assert.False(t, mr.Exists("task:id:3"))
	assert.False(t, mr.Exists("task:3:submissions"))
	assert.True(t, mr.Exists("task:4:submissions"))
}
