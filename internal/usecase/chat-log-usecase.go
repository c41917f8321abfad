package usecase

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/iamvkosarev/wellness-bot/internal/model"
	"github.com/sourcegraph/conc"
)

const persistTimeout = 10 * time.Second

type ChatLogStorage interface {
	AppendMessage(ctx context.Context, userID string, day model.DayKey, msg model.ChatMessage) (model.ChatMessage, error)
	ListMessages(ctx context.Context, userID string, day model.DayKey) ([]model.ChatMessage, error)
	Subscribe(ctx context.Context, userID string, day model.DayKey) (model.Subscription, error)
}

type ChatLogUsecaseDeps struct {
	ChatLogStorage ChatLogStorage
}

type ChatLogUsecase struct {
	ChatLogUsecaseDeps
}

func NewChatLogUsecase(deps ChatLogUsecaseDeps) *ChatLogUsecase {
	return &ChatLogUsecase{
		ChatLogUsecaseDeps: deps,
	}
}

func (c *ChatLogUsecase) History(ctx context.Context, userID string, day model.DayKey) ([]model.ChatMessage, error) {
	messages, err := c.ChatLogStorage.ListMessages(ctx, userID, day)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list messages: %w", model.ErrStorage, err)
	}
	return messages, nil
}

func (c *ChatLogUsecase) Subscribe(ctx context.Context, userID string, day model.DayKey) (model.Subscription, error) {
	sub, err := c.ChatLogStorage.Subscribe(ctx, userID, day)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to subscribe: %w", model.ErrStorage, err)
	}
	return sub, nil
}

// NewWriter starts an ordered persistence worker for one user.
func (c *ChatLogUsecase) NewWriter(userID string, queueSize int) *ChatLogWriter {
	if queueSize <= 0 {
		queueSize = 1
	}
	w := &ChatLogWriter{
		storage: c.ChatLogStorage,
		userID:  userID,
		queue:   make(chan pendingMessage, queueSize),
	}
	w.wg.Go(w.run)
	return w
}

type pendingMessage struct {
	day model.DayKey
	msg model.ChatMessage
}

// ChatLogWriter persists messages fire-and-forget, in the order they were
// enqueued. Failures are logged and dropped.
type ChatLogWriter struct {
	storage ChatLogStorage
	userID  string
	queue   chan pendingMessage
	wg      conc.WaitGroup

	mu     sync.Mutex
	closed bool
}

func (w *ChatLogWriter) Enqueue(day model.DayKey, msg model.ChatMessage) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		log.Printf("[chat-log] writer of %s is closed, message %s dropped", w.userID, msg.ID)
		return
	}
	select {
	case w.queue <- pendingMessage{day: day, msg: msg}:
	default:
		log.Printf("[chat-log] queue of %s is full, message %s dropped", w.userID, msg.ID)
	}
}

// Close stops accepting messages and waits until the queue is drained.
func (w *ChatLogWriter) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	close(w.queue)
	w.mu.Unlock()
	w.wg.Wait()
}

func (w *ChatLogWriter) run() {
	for pending := range w.queue {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		if _, err := w.storage.AppendMessage(ctx, w.userID, pending.day, pending.msg); err != nil {
			log.Printf("[chat-log] failed to persist message %s of %s: %v", pending.msg.ID, w.userID, err)
		}
		cancel()
	}
}
