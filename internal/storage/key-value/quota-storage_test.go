package key_value

import (
	"context"
	"sync"
	"testing"

	"github.com/iamvkosarev/wellness-bot/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuotaStorageLoadInitializesRecord(t *testing.T) {
	ctx := context.Background()
	rdb, mr := newTestRedis(t)
	storage := NewQuotaStorage(rdb)

	record, err := storage.LoadQuota(ctx, "u1", "2026-03-01")
	require.NoError(t, err)

	assert.Equal(t, "u1", record.UserID)
	assert.Equal(t, model.DayKey("2026-03-01"), record.Day)
	assert.Zero(t, record.MessagesCount)
	assert.False(t, record.LastUpdate.IsZero())
	assert.Equal(t, "0", mr.HGet("quota_u1_2026-03-01", "messagesCount"))
	assert.Equal(t, "2026-03-01", mr.HGet("quota_u1_2026-03-01", "dayKey"))
}

func TestQuotaStorageIncrementStopsAtLimit(t *testing.T) {
	ctx := context.Background()
	rdb, mr := newTestRedis(t)
	storage := NewQuotaStorage(rdb)

	for i := 1; i <= 2; i++ {
		record, ok, err := storage.IncrementQuota(ctx, "u1", "2026-03-01", 2)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, i, record.MessagesCount)
	}
	record, ok, err := storage.IncrementQuota(ctx, "u1", "2026-03-01", 2)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 2, record.MessagesCount)

	loaded, err := storage.LoadQuota(ctx, "u1", "2026-03-01")
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.MessagesCount)
	assert.Equal(t, "u1", mr.HGet("quota_u1_2026-03-01", "userId"))
}

func TestQuotaStorageConcurrentIncrements(t *testing.T) {
	ctx := context.Background()
	rdb, _ := newTestRedis(t)
	storage := NewQuotaStorage(rdb)
	const limit, attempts = 20, 40

	var wg sync.WaitGroup
	var mu sync.Mutex
	granted := 0
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := storage.IncrementQuota(ctx, "u1", "2026-03-01", limit)
			if err == nil && ok {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, limit, granted)
	record, err := storage.LoadQuota(ctx, "u1", "2026-03-01")
	require.NoError(t, err)
	assert.Equal(t, limit, record.MessagesCount)
}

func TestQuotaStorageReportsUnavailableServer(t *testing.T) {
	ctx := context.Background()
	rdb, mr := newTestRedis(t)
	storage := NewQuotaStorage(rdb)
	mr.Close()

	_, err := storage.LoadQuota(ctx, "u1", "2026-03-01")
	assert.Error(t, err)
	_, _, err = storage.IncrementQuota(ctx, "u1", "2026-03-01", 20)
	assert.Error(t, err)
}
