package key_value

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/iamvkosarev/wellness-bot/internal/model"
	"github.com/redis/go-redis/v9"
)

const (
	quotaFieldCount      = "messagesCount"
	quotaFieldLastUpdate = "lastUpdate"
	quotaFieldDay        = "dayKey"
	quotaFieldUser       = "userId"
)

// incrementQuotaScript reads the count and increments it in one step, so
// concurrent sends never push a record past the limit.
var incrementQuotaScript = redis.NewScript(`
local count = tonumber(redis.call('HGET', KEYS[1], 'messagesCount') or '0')
if count >= tonumber(ARGV[1]) then
	return {0, count}
end
count = redis.call('HINCRBY', KEYS[1], 'messagesCount', 1)
redis.call('HSET', KEYS[1], 'lastUpdate', ARGV[2], 'dayKey', ARGV[3], 'userId', ARGV[4])
return {1, count}
`)

type QuotaStorage struct {
	rdb *redis.Client
}

func NewQuotaStorage(rdb *redis.Client) *QuotaStorage {
	return &QuotaStorage{
		rdb: rdb,
	}
}

func (q *QuotaStorage) LoadQuota(ctx context.Context, userID string, day model.DayKey) (model.QuotaRecord, error) {
	key := getQuotaKey(userID, day)
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := q.rdb.TxPipelined(
		ctx, func(pipe redis.Pipeliner) error {
			pipe.HSetNX(ctx, key, quotaFieldCount, 0)
			pipe.HSetNX(ctx, key, quotaFieldLastUpdate, now)
			pipe.HSetNX(ctx, key, quotaFieldDay, day.String())
			pipe.HSetNX(ctx, key, quotaFieldUser, userID)
			return nil
		},
	)
	if err != nil {
		return model.QuotaRecord{}, fmt.Errorf("failed to init quota %s: %w", key, err)
	}

	fields, err := q.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return model.QuotaRecord{}, fmt.Errorf("failed to get quota %s: %w", key, err)
	}
	return parseQuotaRecord(userID, day, fields)
}

func (q *QuotaStorage) IncrementQuota(
	ctx context.Context,
	userID string,
	day model.DayKey,
	limit int,
) (model.QuotaRecord, bool, error) {
	key := getQuotaKey(userID, day)
	now := time.Now().UTC()
	res, err := incrementQuotaScript.Run(
		ctx, q.rdb, []string{key},
		limit, now.Format(time.RFC3339Nano), day.String(), userID,
	).Int64Slice()
	if err != nil {
		return model.QuotaRecord{}, false, fmt.Errorf("failed to increment quota %s: %w", key, err)
	}
	if len(res) != 2 {
		return model.QuotaRecord{}, false, fmt.Errorf("unexpected quota script result %v", res)
	}
	record := model.QuotaRecord{
		UserID:        userID,
		Day:           day,
		MessagesCount: int(res[1]),
		LastUpdate:    now,
	}
	return record, res[0] == 1, nil
}

func parseQuotaRecord(userID string, day model.DayKey, fields map[string]string) (model.QuotaRecord, error) {
	record := model.QuotaRecord{
		UserID: userID,
		Day:    day,
	}
	if raw, ok := fields[quotaFieldCount]; ok {
		count, err := strconv.Atoi(raw)
		if err != nil {
			return model.QuotaRecord{}, fmt.Errorf("failed to parse quota count %q: %w", raw, err)
		}
		record.MessagesCount = count
	}
	if raw, ok := fields[quotaFieldLastUpdate]; ok {
		lastUpdate, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return model.QuotaRecord{}, fmt.Errorf("failed to parse quota last update %q: %w", raw, err)
		}
		record.LastUpdate = lastUpdate
	}
	return record, nil
}

func getQuotaKey(userID string, day model.DayKey) string {
	return fmt.Sprintf("quota_%s_%s", userID, day)
}
