package in_memory

import (
	"context"
	"sync"
	"time"

	"github.com/iamvkosarev/wellness-bot/internal/model"
)

type quotaKey struct {
	userID string
	day    model.DayKey
}

type QuotaStorage struct {
	mu      sync.Mutex
	records map[quotaKey]*model.QuotaRecord
}

func NewQuotaStorage() *QuotaStorage {
	return &QuotaStorage{
		records: make(map[quotaKey]*model.QuotaRecord),
	}
}

func (q *QuotaStorage) LoadQuota(_ context.Context, userID string, day model.DayKey) (model.QuotaRecord, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return *q.recordLocked(userID, day), nil
}

// IncrementQuota adds one message to the (user, day) record unless the count
// already reached limit. The check and the write happen under one lock.
func (q *QuotaStorage) IncrementQuota(
	_ context.Context,
	userID string,
	day model.DayKey,
	limit int,
) (model.QuotaRecord, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	record := q.recordLocked(userID, day)
	if record.MessagesCount >= limit {
		return *record, false, nil
	}
	record.MessagesCount++
	record.LastUpdate = time.Now()
	return *record, true, nil
}

func (q *QuotaStorage) recordLocked(userID string, day model.DayKey) *model.QuotaRecord {
	key := quotaKey{userID: userID, day: day}
	record, ok := q.records[key]
	if !ok {
		record = &model.QuotaRecord{
			UserID:     userID,
			Day:        day,
			LastUpdate: time.Now(),
		}
		q.records[key] = record
	}
	return record
}
