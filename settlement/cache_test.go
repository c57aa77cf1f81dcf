package settlement

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adipundir/aptos-x402/types"
)

func TestCacheCheckAndMark(t *testing.T) {
	cache := NewCache(time.Minute, 16)
	key := Key([]byte("payload-a"))

	status, cached, done := cache.CheckAndMark(key)
	assert.Equal(t, StatusNotFound, status)
	assert.Nil(t, cached)
	require.NotNil(t, done)

	// A concurrent duplicate sees the attempt in flight.
	status2, _, done2 := cache.CheckAndMark(key)
	assert.Equal(t, StatusInFlight, status2)
	assert.Equal(t, done, done2)

	result := &types.SettlementResult{Success: true, TxHash: "0xabc"}
	cache.Complete(key, result, done)

	status3, cached3, _ := cache.CheckAndMark(key)
	assert.Equal(t, StatusCached, status3)
	assert.Equal(t, result, cached3)
}

func TestCacheWaitReturnsCompletedResult(t *testing.T) {
	cache := NewCache(time.Minute, 16)
	key := Key([]byte("payload-b"))

	_, _, done := cache.CheckAndMark(key)
	result := &types.SettlementResult{Success: true, TxHash: "0xdef"}

	go func() {
		time.Sleep(10 * time.Millisecond)
		cache.Complete(key, result, done)
	}()

	got, err := cache.Wait(context.Background(), key, done)
	require.NoError(t, err)
	assert.Equal(t, result, got)
}

func TestCacheWaitAfterFailReturnsNil(t *testing.T) {
	cache := NewCache(time.Minute, 16)
	key := Key([]byte("payload-c"))

	_, _, done := cache.CheckAndMark(key)
	go cache.Fail(key, done)

	got, err := cache.Wait(context.Background(), key, done)
	require.NoError(t, err)
	assert.Nil(t, got)

	// The key is retryable after a failure.
	status, _, _ := cache.CheckAndMark(key)
	assert.Equal(t, StatusNotFound, status)
}

func TestCacheWaitHonorsContext(t *testing.T) {
	cache := NewCache(time.Minute, 16)
	key := Key([]byte("payload-d"))
	_, _, done := cache.CheckAndMark(key)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := cache.Wait(ctx, key, done)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCacheExpiry(t *testing.T) {
	cache := NewCache(20*time.Millisecond, 16)
	key := Key([]byte("payload-e"))

	_, _, done := cache.CheckAndMark(key)
	cache.Complete(key, &types.SettlementResult{Success: true}, done)
	require.NotNil(t, cache.Get(key))

	time.Sleep(30 * time.Millisecond)
	assert.Nil(t, cache.Get(key))

	// An expired entry is settled again, not served stale.
	status, _, _ := cache.CheckAndMark(key)
	assert.Equal(t, StatusNotFound, status)
}

func TestCacheEvictsWhenFull(t *testing.T) {
	cache := NewCache(time.Minute, 4)

	for i := 0; i < 10; i++ {
		key := Key([]byte(fmt.Sprintf("payload-%d", i)))
		_, _, done := cache.CheckAndMark(key)
		cache.Complete(key, &types.SettlementResult{Success: true}, done)
	}

	assert.LessOrEqual(t, cache.Len(), 4)
}

func TestKeyIsSignatureSensitive(t *testing.T) {
	a := Key([]byte("txn-bytes" + "sig-one"))
	b := Key([]byte("txn-bytes" + "sig-two"))
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, Key([]byte("txn-bytessig-one")))
}
