package in_memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/iamvkosarev/wellness-bot/internal/model"
	"github.com/iamvkosarev/wellness-bot/internal/storage/feed"
)

type ChatLogStorage struct {
	mu   sync.Mutex
	logs map[string][]model.ChatMessage
	hub  *feed.Hub
}

func NewChatLogStorage() *ChatLogStorage {
	return &ChatLogStorage{
		logs: make(map[string][]model.ChatMessage),
		hub:  feed.NewHub(),
	}
}

func (c *ChatLogStorage) AppendMessage(
	_ context.Context,
	userID string,
	day model.DayKey,
	msg model.ChatMessage,
) (model.ChatMessage, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	key := feed.Key(userID, day)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logs[key] = append(c.logs[key], msg)
	c.hub.Publish(key, c.logs[key])
	return msg, nil
}

func (c *ChatLogStorage) ListMessages(_ context.Context, userID string, day model.DayKey) ([]model.ChatMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.logs[feed.Key(userID, day)]), nil
}

func (c *ChatLogStorage) Subscribe(
	_ context.Context,
	userID string,
	day model.DayKey,
) (model.Subscription, error) {
	key := feed.Key(userID, day)
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hub.Subscribe(key, c.logs[key]), nil
}

func (c *ChatLogStorage) Close() error {
	c.hub.Close()
	return nil
}
