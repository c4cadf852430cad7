package lock

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestKeyedMutexSerializesKey(t *testing.T) {
	km := NewKeyedMutex()
	var (
		inside  int32
		maxSeen int32
		wg      sync.WaitGroup
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := km.Acquire(context.Background(), "route_card:1")
			require.NoError(t, err)
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxSeen)
				if n <= m || atomic.CompareAndSwapInt32(&maxSeen, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			release()
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxSeen)
	assert.Equal(t, 0, km.Len())
}

func TestKeyedMutexIndependentKeys(t *testing.T) {
	km := NewKeyedMutex()
	releaseA, err := km.Acquire(context.Background(), "a")
	require.NoError(t, err)
	defer releaseA()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	releaseB, err := km.Acquire(ctx, "b")
	require.NoError(t, err)
	releaseB()
	assert.Equal(t, 1, km.Len())
}

func TestKeyedMutexContextCancel(t *testing.T) {
	km := NewKeyedMutex()
	release, err := km.Acquire(context.Background(), "k")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = km.Acquire(ctx, "k")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	release()
	release()
	assert.Equal(t, 0, km.Len())

	again, err := km.Acquire(context.Background(), "k")
	require.NoError(t, err)
	again()
}

func TestRedisLocker(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("set REDIS_ADDR to run against Redis")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	locker := NewRedisLocker(client, 5*time.Second, zap.NewNop(),
		WithPrefix("mes:test:"+t.Name()+":"), WithRetry(10*time.Millisecond, 2))
	release, err := locker.Acquire(context.Background(), "route_card:1")
	require.NoError(t, err)

	_, err = locker.Acquire(context.Background(), "route_card:1")
	assert.ErrorIs(t, err, ErrNotObtained)

	release()
	again, err := locker.Acquire(context.Background(), "route_card:1")
	require.NoError(t, err)
	again()
}
