// ABOUTME: Tests for the idempotency cache used to replay resubmitted message sends
// ABOUTME: Covers expiry, eviction order, sweeping and single execution under concurrency

package dedupe

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_GetMissing(t *testing.T) {
	cache := New(5*time.Minute, 100)
	defer cache.Close()

	_, ok := cache.Get("never-seen-key")
	assert.False(t, ok)
}

func TestCache_PutGet(t *testing.T) {
	cache := New(5*time.Minute, 100)
	defer cache.Close()

	cache.Put("key", "msg-1")

	v, ok := cache.Get("key")
	assert.True(t, ok)
	assert.Equal(t, "msg-1", v)
}

func TestCache_Expired(t *testing.T) {
	cache := New(10*time.Millisecond, 100)
	defer cache.Close()

	cache.Put("expiring-key", "msg-1")
	_, ok := cache.Get("expiring-key")
	assert.True(t, ok)

	time.Sleep(20 * time.Millisecond)

	_, ok = cache.Get("expiring-key")
	assert.False(t, ok)
}

func TestCache_EvictionOrder(t *testing.T) {
	cache := New(5*time.Minute, 3)
	defer cache.Close()

	cache.Put("first", "1")
	cache.Put("second", "2")
	cache.Put("third", "3")
	cache.Put("fourth", "4")

	_, ok := cache.Get("first")
	assert.False(t, ok, "oldest key should be evicted")
	for _, k := range []string{"second", "third", "fourth"} {
		_, ok := cache.Get(k)
		assert.True(t, ok, k)
	}
	assert.Equal(t, 3, cache.Len())

	// re-putting moves a key to the back
	cache.Put("second", "2b")
	cache.Put("fifth", "5")

	_, ok = cache.Get("third")
	assert.False(t, ok, "third is now the oldest")
	v, _ := cache.Get("second")
	assert.Equal(t, "2b", v)
}

func TestCache_Sweep(t *testing.T) {
	cache := New(10*time.Millisecond, 100)
	defer cache.Close()

	cache.Put("sweep-1", "a")
	cache.Put("sweep-2", "b")

	time.Sleep(20 * time.Millisecond)
	cache.sweep()

	assert.Zero(t, cache.Len(), "sweep should remove expired entries")
}

func TestCache_DoRunsOnceAndReplays(t *testing.T) {
	cache := New(5*time.Minute, 100)
	defer cache.Close()

	calls := 0
	fn := func() (string, error) {
		calls++
		return "msg-1", nil
	}

	v, replayed, err := cache.Do("k", fn)
	require.NoError(t, err)
	assert.Equal(t, "msg-1", v)
	assert.False(t, replayed)

	v, replayed, err = cache.Do("k", fn)
	require.NoError(t, err)
	assert.Equal(t, "msg-1", v)
	assert.True(t, replayed)
	assert.Equal(t, 1, calls)
}

func TestCache_DoFailureIsNotCached(t *testing.T) {
	cache := New(5*time.Minute, 100)
	defer cache.Close()

	boom := errors.New("store down")
	_, _, err := cache.Do("k", func() (string, error) { return "", boom })
	assert.ErrorIs(t, err, boom)

	_, ok := cache.Get("k")
	assert.False(t, ok)

	v, replayed, err := cache.Do("k", func() (string, error) { return "msg-2", nil })
	require.NoError(t, err)
	assert.Equal(t, "msg-2", v)
	assert.False(t, replayed)
}

func TestCache_DoConcurrentSameKey(t *testing.T) {
	cache := New(5*time.Minute, 100)
	defer cache.Close()

	const numGoroutines = 50
	var runs atomic.Int32
	var fresh atomic.Int32
	results := make([]string, numGoroutines)

	var wg sync.WaitGroup
	wg.Add(numGoroutines)
	for i := range numGoroutines {
		go func() {
			defer wg.Done()
			v, replayed, err := cache.Do("contested", func() (string, error) {
				n := runs.Add(1)
				time.Sleep(10 * time.Millisecond)
				return fmt.Sprintf("msg-%d", n), nil
			})
			assert.NoError(t, err)
			if !replayed {
				fresh.Add(1)
			}
			results[i] = v
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), runs.Load(), "fn must run exactly once")
	assert.Equal(t, int32(1), fresh.Load(), "exactly one caller sees a fresh result")
	for _, r := range results {
		assert.Equal(t, "msg-1", r)
	}
}

func TestCache_Concurrent(t *testing.T) {
	cache := New(5*time.Minute, 1000)
	defer cache.Close()

	var wg sync.WaitGroup
	for i := range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range 100 {
				key := fmt.Sprintf("key-%d-%d", i%26, j%10)
				cache.Put(key, "v")
				cache.Get(key)
			}
		}()
	}
	wg.Wait()

	cache.Put("final-key", "v")
	_, ok := cache.Get("final-key")
	assert.True(t, ok)
}

func TestCache_Close(t *testing.T) {
	cache := New(5*time.Minute, 100)
	cache.Close()
	cache.Close()
}
