package usecase

import (
	"context"
	"fmt"

	"github.com/iamvkosarev/wellness-bot/config"
	"github.com/iamvkosarev/wellness-bot/internal/model"
)

type QuotaStorage interface {
	LoadQuota(ctx context.Context, userID string, day model.DayKey) (model.QuotaRecord, error)
	IncrementQuota(ctx context.Context, userID string, day model.DayKey, limit int) (model.QuotaRecord, bool, error)
}

type QuotaUsecaseDeps struct {
	QuotaStorage QuotaStorage
}

type QuotaUsecase struct {
	QuotaUsecaseDeps
	limit int
}

// Consumption is the outcome of one TryConsume call. Day is the day the unit
// was charged against.
type Consumption struct {
	OK        bool
	Remaining int
	Day       model.DayKey
}

func NewQuotaUsecase(deps QuotaUsecaseDeps, cfg config.Quota) *QuotaUsecase {
	return &QuotaUsecase{
		QuotaUsecaseDeps: deps,
		limit:            cfg.DailyLimit,
	}
}

func (q *QuotaUsecase) Limit() int {
	return q.limit
}

// Load returns the remaining sends for (userID, day), creating an empty record
// on first access.
func (q *QuotaUsecase) Load(ctx context.Context, userID string, day model.DayKey) (int, error) {
	record, err := q.QuotaStorage.LoadQuota(ctx, userID, day)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to load quota: %w", model.ErrStorage, err)
	}
	return q.remaining(record.MessagesCount), nil
}

func (q *QuotaUsecase) TryConsume(ctx context.Context, userID string, day model.DayKey) (Consumption, error) {
	record, ok, err := q.QuotaStorage.IncrementQuota(ctx, userID, day, q.limit)
	if err != nil {
		return Consumption{Day: day}, fmt.Errorf("%w: failed to consume quota: %w", model.ErrStorage, err)
	}
	return Consumption{
		OK:        ok,
		Remaining: q.remaining(record.MessagesCount),
		Day:       day,
	}, nil
}

func (q *QuotaUsecase) remaining(count int) int {
	return min(max(q.limit-count, 0), q.limit)
}
