package key_value

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/iamvkosarev/wellness-bot/internal/model"
	"github.com/iamvkosarev/wellness-bot/internal/storage/feed"
	"github.com/redis/go-redis/v9"
)

const (
	messageFieldID        = "messageId"
	messageFieldSender    = "sender"
	messageFieldText      = "text"
	messageFieldTimestamp = "timestamp"

	streamReadBlock   = 500 * time.Millisecond
	streamRetryDelay  = time.Second
	streamReadBatch   = 100
	streamStartCursor = "0-0"
)

// ChatLogStorage keeps every (user, day) chat log in its own redis stream.
// Stream entry ids give the server-side append order.
type ChatLogStorage struct {
	rdb *redis.Client
}

func NewChatLogStorage(rdb *redis.Client) *ChatLogStorage {
	return &ChatLogStorage{
		rdb: rdb,
	}
}

func (c *ChatLogStorage) AppendMessage(
	ctx context.Context,
	userID string,
	day model.DayKey,
	msg model.ChatMessage,
) (model.ChatMessage, error) {
	key := getChatLogKey(userID, day)
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	streamID, err := c.rdb.XAdd(
		ctx, &redis.XAddArgs{
			Stream: key,
			Values: map[string]interface{}{
				messageFieldID:        msg.ID,
				messageFieldSender:    string(msg.Sender),
				messageFieldText:      msg.Text,
				messageFieldTimestamp: msg.Timestamp.UTC().Format(time.RFC3339Nano),
			},
		},
	).Result()
	if err != nil {
		return model.ChatMessage{}, fmt.Errorf("failed to append message to %s: %w", key, err)
	}
	if msg.ID == "" {
		msg.ID = streamID
	}
	return msg, nil
}

func (c *ChatLogStorage) ListMessages(ctx context.Context, userID string, day model.DayKey) ([]model.ChatMessage, error) {
	messages, _, err := c.listMessages(ctx, getChatLogKey(userID, day))
	return messages, err
}

// Subscribe pushes the full log of the partition to the subscription every
// time new entries show up in the stream.
func (c *ChatLogStorage) Subscribe(
	ctx context.Context,
	userID string,
	day model.DayKey,
) (model.Subscription, error) {
	key := getChatLogKey(userID, day)
	messages, cursor, err := c.listMessages(ctx, key)
	if err != nil {
		return nil, err
	}

	subCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	sub := feed.NewSubscription(cancel)
	sub.Push(messages)
	go c.follow(subCtx, sub, key, cursor, messages)
	return sub, nil
}

func (c *ChatLogStorage) follow(
	ctx context.Context,
	sub *feed.Subscription,
	key string,
	cursor string,
	messages []model.ChatMessage,
) {
	defer sub.Close()
	for {
		streams, err := c.rdb.XRead(
			ctx, &redis.XReadArgs{
				Streams: []string{key, cursor},
				Count:   streamReadBatch,
				Block:   streamReadBlock,
			},
		).Result()
		if ctx.Err() != nil {
			return
		}
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			log.Printf("[chat-log] failed to read stream %s: %v", key, err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(streamRetryDelay):
			}
			continue
		}

		for _, stream := range streams {
			for _, entry := range stream.Messages {
				msg, err := parseStreamMessage(entry)
				if err != nil {
					log.Printf("[chat-log] skip entry %s of %s: %v", entry.ID, key, err)
				} else {
					messages = append(messages, msg)
				}
				cursor = entry.ID
			}
		}
		if !sub.Push(messages) {
			return
		}
	}
}

func (c *ChatLogStorage) listMessages(ctx context.Context, key string) ([]model.ChatMessage, string, error) {
	entries, err := c.rdb.XRange(ctx, key, "-", "+").Result()
	if err != nil {
		return nil, "", fmt.Errorf("failed to read chat log %s: %w", key, err)
	}
	cursor := streamStartCursor
	messages := make([]model.ChatMessage, 0, len(entries))
	for _, entry := range entries {
		cursor = entry.ID
		msg, err := parseStreamMessage(entry)
		if err != nil {
			log.Printf("[chat-log] skip entry %s of %s: %v", entry.ID, key, err)
			continue
		}
		messages = append(messages, msg)
	}
	return messages, cursor, nil
}

func parseStreamMessage(entry redis.XMessage) (model.ChatMessage, error) {
	field := func(name string) string {
		value, _ := entry.Values[name].(string)
		return value
	}
	sender, ok := model.ParseMessageSender(field(messageFieldSender))
	if !ok {
		return model.ChatMessage{}, fmt.Errorf("unknown sender %q", field(messageFieldSender))
	}
	msg := model.ChatMessage{
		ID:     field(messageFieldID),
		Sender: sender,
		Text:   field(messageFieldText),
	}
	if msg.ID == "" {
		msg.ID = entry.ID
	}
	if raw := field(messageFieldTimestamp); raw != "" {
		timestamp, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return model.ChatMessage{}, fmt.Errorf("failed to parse timestamp %q: %w", raw, err)
		}
		msg.Timestamp = timestamp
	} else {
		msg.Timestamp = streamIDTime(entry.ID)
	}
	return msg, nil
}

func streamIDTime(id string) time.Time {
	millis, _, _ := strings.Cut(id, "-")
	ms, err := strconv.ParseInt(millis, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

func getChatLogKey(userID string, day model.DayKey) string {
	return fmt.Sprintf("chat_log_%s_%s", userID, day)
}
