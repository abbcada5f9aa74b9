package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ayo6706/wallet-ledger/internal/repository"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewStore(client, repository.NewMemoryStore().Queries(), time.Minute), mr
}

func TestStoreReserveFinalizeReplay(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t)

	_, err := store.Lookup(ctx, "k1", "hash")
	require.ErrorIs(t, err, ErrNotFound)

	reserved, err := store.Reserve(ctx, "k1", "hash", "POST", "/v1/transfers")
	require.NoError(t, err)
	assert.True(t, reserved)

	reserved, err = store.Reserve(ctx, "k1", "hash", "POST", "/v1/transfers")
	require.NoError(t, err)
	assert.False(t, reserved)

	_, err = store.Lookup(ctx, "k1", "hash")
	require.ErrorIs(t, err, ErrInProgress)

	rec, err := store.Finalize(ctx, "k1", "hash", 201, []byte(`{"status":"SUCCESS"}`), "application/json")
	require.NoError(t, err)
	assert.Equal(t, 201, rec.Status)
	assert.True(t, mr.Exists(redisKey("k1")))

	rec, err = store.Lookup(ctx, "k1", "hash")
	require.NoError(t, err)
	assert.Equal(t, ServedByCache, rec.ServedBy)
	assert.JSONEq(t, `{"status":"SUCCESS"}`, string(rec.Body))

	_, err = store.Lookup(ctx, "k1", "other")
	require.ErrorIs(t, err, ErrHashMismatch)
}

func TestStoreFallsBackToDatabase(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t)

	_, err := store.Reserve(ctx, "k2", "hash", "POST", "/v1/conversions")
	require.NoError(t, err)
	_, err = store.Finalize(ctx, "k2", "hash", 202, []byte(`{}`), "application/json")
	require.NoError(t, err)

	mr.FlushAll()
	rec, err := store.Lookup(ctx, "k2", "hash")
	require.NoError(t, err)
	assert.Equal(t, ServedByStore, rec.ServedBy)
	assert.Equal(t, 202, rec.Status)
	assert.True(t, mr.Exists(redisKey("k2")), "lookup refills the cache")
}

func TestScopedKey(t *testing.T) {
	assert.Equal(t, "user-1:abc", ScopedKey("user-1", "abc"))
	assert.Equal(t, "abc", ScopedKey("", "abc"))
}

func TestWaitForCompletionReturnsFinalizedRecord(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	store := NewStore(nil, repository.NewMemoryStore().Queries(), time.Minute)

	reserved, err := store.Reserve(ctx, "k3", "hash", "POST", "/v1/transfers")
	require.NoError(t, err)
	require.True(t, reserved)

	go func() {
		time.Sleep(100 * time.Millisecond)
		_, _ = store.Finalize(context.Background(), "k3", "hash", 202, []byte(`{"status":"processing"}`), "application/json")
	}()

	rec, err := store.WaitForCompletion(ctx, "k3", "hash")
	require.NoError(t, err)
	assert.Equal(t, 202, rec.Status)
	assert.Equal(t, ServedByStore, rec.ServedBy)
}
