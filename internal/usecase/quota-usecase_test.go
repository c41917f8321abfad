package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/iamvkosarev/wellness-bot/config"
	"github.com/iamvkosarev/wellness-bot/internal/model"
	in_memory "github.com/iamvkosarev/wellness-bot/internal/storage/in-memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockQuotaStorage struct {
	mock.Mock
}

func (m *mockQuotaStorage) LoadQuota(ctx context.Context, userID string, day model.DayKey) (model.QuotaRecord, error) {
	args := m.Called(ctx, userID, day)
	return args.Get(0).(model.QuotaRecord), args.Error(1)
}

func (m *mockQuotaStorage) IncrementQuota(
	ctx context.Context,
	userID string,
	day model.DayKey,
	limit int,
) (model.QuotaRecord, bool, error) {
	args := m.Called(ctx, userID, day, limit)
	return args.Get(0).(model.QuotaRecord), args.Bool(1), args.Error(2)
}

func newQuotaUsecase(limit int) *QuotaUsecase {
	return NewQuotaUsecase(
		QuotaUsecaseDeps{QuotaStorage: in_memory.NewQuotaStorage()},
		config.Quota{DailyLimit: limit},
	)
}

func TestQuotaUsecaseFreshDayHasFullLimit(t *testing.T) {
	quota := newQuotaUsecase(20)

	remaining, err := quota.Load(context.Background(), "u1", "2026-03-01")
	require.NoError(t, err)
	assert.Equal(t, 20, remaining)
}

func TestQuotaUsecaseTryConsumeCountsDown(t *testing.T) {
	ctx := context.Background()
	quota := newQuotaUsecase(2)

	first, err := quota.TryConsume(ctx, "u1", "2026-03-01")
	require.NoError(t, err)
	assert.Equal(t, Consumption{OK: true, Remaining: 1, Day: "2026-03-01"}, first)

	second, err := quota.TryConsume(ctx, "u1", "2026-03-01")
	require.NoError(t, err)
	assert.Equal(t, Consumption{OK: true, Remaining: 0, Day: "2026-03-01"}, second)

	third, err := quota.TryConsume(ctx, "u1", "2026-03-01")
	require.NoError(t, err)
	assert.Equal(t, Consumption{OK: false, Remaining: 0, Day: "2026-03-01"}, third)

	remaining, err := quota.Load(ctx, "u1", "2026-03-02")
	require.NoError(t, err)
	assert.Equal(t, 2, remaining, "no carry-over into the next day")
}

func TestQuotaUsecaseConcurrentConsumers(t *testing.T) {
	ctx := context.Background()
	quota := newQuotaUsecase(20)

	for _, callers := range []int{5, 20, 35} {
		day := model.DayKey("2026-03-01")
		user := "u" + string(rune('a'+callers%26))
		var wg sync.WaitGroup
		var mu sync.Mutex
		succeeded := 0
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				consumption, err := quota.TryConsume(ctx, user, day)
				if err == nil && consumption.OK {
					mu.Lock()
					succeeded++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, min(callers, 20), succeeded, "callers=%d", callers)
	}
}

func TestQuotaUsecaseClampsRemaining(t *testing.T) {
	storage := &mockQuotaStorage{}
	quota := NewQuotaUsecase(QuotaUsecaseDeps{QuotaStorage: storage}, config.Quota{DailyLimit: 20})
	storage.On("LoadQuota", mock.Anything, "u1", model.DayKey("2026-03-01")).
		Return(model.QuotaRecord{MessagesCount: 25}, nil)
	storage.On("LoadQuota", mock.Anything, "u2", model.DayKey("2026-03-01")).
		Return(model.QuotaRecord{MessagesCount: -3}, nil)

	remaining, err := quota.Load(context.Background(), "u1", "2026-03-01")
	require.NoError(t, err)
	assert.Equal(t, 0, remaining)

	remaining, err = quota.Load(context.Background(), "u2", "2026-03-01")
	require.NoError(t, err)
	assert.Equal(t, 20, remaining)
}

func TestQuotaUsecaseWrapsStorageErrors(t *testing.T) {
	storage := &mockQuotaStorage{}
	quota := NewQuotaUsecase(QuotaUsecaseDeps{QuotaStorage: storage}, config.Quota{DailyLimit: 20})
	boom := errors.New("connection refused")
	storage.On("LoadQuota", mock.Anything, "u1", mock.Anything).Return(model.QuotaRecord{}, boom)
	storage.On("IncrementQuota", mock.Anything, "u1", mock.Anything, 20).Return(model.QuotaRecord{}, false, boom)

	_, err := quota.Load(context.Background(), "u1", "2026-03-01")
	assert.ErrorIs(t, err, model.ErrStorage)
	assert.ErrorIs(t, err, boom)

	consumption, err := quota.TryConsume(context.Background(), "u1", "2026-03-01")
	assert.ErrorIs(t, err, model.ErrStorage)
	assert.Equal(t, model.DayKey("2026-03-01"), consumption.Day)
	storage.AssertExpectations(t)
}
