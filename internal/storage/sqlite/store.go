package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/iamvkosarev/wellness-bot/internal/model"
	"github.com/iamvkosarev/wellness-bot/internal/storage/feed"
	_ "github.com/mattn/go-sqlite3"
)

var (
	ErrUserAlreadyExists = errors.New("user already exists")
	ErrUserDoesNotExists = errors.New("user doesn't exists")
)

const timeLayout = time.RFC3339Nano

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	telegram_id INTEGER UNIQUE,
	display_name TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS quotas (
	user_id TEXT NOT NULL,
	day_key TEXT NOT NULL,
	messages_count INTEGER NOT NULL DEFAULT 0,
	last_update TEXT NOT NULL,
	PRIMARY KEY (user_id, day_key)
);

CREATE TABLE IF NOT EXISTS chat_messages (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
	user_id TEXT NOT NULL,
	day_key TEXT NOT NULL,
	sender TEXT NOT NULL CHECK (sender IN ('user', 'assistant')),
	text TEXT NOT NULL,
	timestamp TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_chat_messages_partition ON chat_messages (user_id, day_key, seq);
`

// Store keeps users, quota records and chat logs in one sqlite file.
// Subscriptions are served in process.
type Store struct {
	db  *sql.DB
	hub *feed.Hub

	appendMu sync.Mutex
}

func Open(dbPath string) (*Store, error) {
	if strings.TrimSpace(dbPath) == "" {
		return nil, fmt.Errorf("db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection serializes writers, which the quota upsert relies on.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA busy_timeout=3000;",
		"PRAGMA synchronous=NORMAL;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma %s: %w", p, err)
		}
	}
	if _, err = db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &Store{db: db, hub: feed.NewHub()}, nil
}

func (s *Store) Close() error {
	s.hub.Close()
	return s.db.Close()
}

func (s *Store) LoadQuota(ctx context.Context, userID string, day model.DayKey) (model.QuotaRecord, error) {
	_, err := s.db.ExecContext(
		ctx,
		"INSERT OR IGNORE INTO quotas (user_id, day_key, messages_count, last_update) VALUES (?, ?, 0, ?)",
		userID, day.String(), time.Now().UTC().Format(timeLayout),
	)
	if err != nil {
		return model.QuotaRecord{}, fmt.Errorf("failed to init quota: %w", err)
	}
	return s.getQuota(ctx, userID, day)
}

// IncrementQuota bumps the count in a single conditional upsert. No row comes
// back when the record already reached limit.
func (s *Store) IncrementQuota(
	ctx context.Context,
	userID string,
	day model.DayKey,
	limit int,
) (model.QuotaRecord, bool, error) {
	if limit <= 0 {
		record, err := s.LoadQuota(ctx, userID, day)
		return record, false, err
	}
	now := time.Now().UTC()
	var count int
	err := s.db.QueryRowContext(
		ctx, `
		INSERT INTO quotas (user_id, day_key, messages_count, last_update) VALUES (?, ?, 1, ?)
		ON CONFLICT (user_id, day_key) DO UPDATE
			SET messages_count = quotas.messages_count + 1, last_update = excluded.last_update
			WHERE quotas.messages_count < ?
		RETURNING messages_count`,
		userID, day.String(), now.Format(timeLayout), limit,
	).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		record, err := s.getQuota(ctx, userID, day)
		return record, false, err
	}
	if err != nil {
		return model.QuotaRecord{}, false, fmt.Errorf("failed to increment quota: %w", err)
	}
	record := model.QuotaRecord{
		UserID:        userID,
		Day:           day,
		MessagesCount: count,
		LastUpdate:    now,
	}
	return record, true, nil
}

func (s *Store) getQuota(ctx context.Context, userID string, day model.DayKey) (model.QuotaRecord, error) {
	var (
		count      int
		lastUpdate string
	)
	err := s.db.QueryRowContext(
		ctx,
		"SELECT messages_count, last_update FROM quotas WHERE user_id = ? AND day_key = ?",
		userID, day.String(),
	).Scan(&count, &lastUpdate)
	if err != nil {
		return model.QuotaRecord{}, fmt.Errorf("failed to get quota: %w", err)
	}
	updated, err := time.Parse(timeLayout, lastUpdate)
	if err != nil {
		return model.QuotaRecord{}, fmt.Errorf("failed to parse quota last update %q: %w", lastUpdate, err)
	}
	return model.QuotaRecord{
		UserID:        userID,
		Day:           day,
		MessagesCount: count,
		LastUpdate:    updated,
	}, nil
}

func (s *Store) AppendMessage(
	ctx context.Context,
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

	s.appendMu.Lock()
	defer s.appendMu.Unlock()
	_, err := s.db.ExecContext(
		ctx,
		"INSERT INTO chat_messages (id, user_id, day_key, sender, text, timestamp) VALUES (?, ?, ?, ?, ?, ?)",
		msg.ID, userID, day.String(), string(msg.Sender), msg.Text, msg.Timestamp.UTC().Format(timeLayout),
	)
	if err != nil {
		return model.ChatMessage{}, fmt.Errorf("failed to insert message: %w", err)
	}

	messages, err := s.ListMessages(ctx, userID, day)
	if err != nil {
		log.Printf("[sqlite] failed to publish chat log of %s: %v", userID, err)
		return msg, nil
	}
	s.hub.Publish(feed.Key(userID, day), messages)
	return msg, nil
}

func (s *Store) ListMessages(ctx context.Context, userID string, day model.DayKey) ([]model.ChatMessage, error) {
	rows, err := s.db.QueryContext(
		ctx,
		"SELECT id, sender, text, timestamp FROM chat_messages WHERE user_id = ? AND day_key = ? ORDER BY seq",
		userID, day.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	messages := make([]model.ChatMessage, 0)
	for rows.Next() {
		var (
			msg       model.ChatMessage
			sender    string
			timestamp string
		)
		if err = rows.Scan(&msg.ID, &sender, &msg.Text, &timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		parsedSender, ok := model.ParseMessageSender(sender)
		if !ok {
			continue
		}
		msg.Sender = parsedSender
		if msg.Timestamp, err = time.Parse(timeLayout, timestamp); err != nil {
			return nil, fmt.Errorf("failed to parse message timestamp %q: %w", timestamp, err)
		}
		messages = append(messages, msg)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read messages: %w", err)
	}
	return messages, nil
}

func (s *Store) Subscribe(
	ctx context.Context,
	userID string,
	day model.DayKey,
) (model.Subscription, error) {
	s.appendMu.Lock()
	defer s.appendMu.Unlock()
	messages, err := s.ListMessages(ctx, userID, day)
	if err != nil {
		return nil, err
	}
	return s.hub.Subscribe(feed.Key(userID, day), messages), nil
}

func (s *Store) CreateNewTelegramUser(ctx context.Context, userTelegramID int64, displayName string) (string, error) {
	userID := uuid.NewString()
	res, err := s.db.ExecContext(
		ctx,
		"INSERT OR IGNORE INTO users (id, telegram_id, display_name, created_at) VALUES (?, ?, ?, ?)",
		userID, userTelegramID, displayName, time.Now().UTC().Format(timeLayout),
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert user: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return "", ErrUserAlreadyExists
	}
	return userID, nil
}

func (s *Store) UpdateUserDisplayName(ctx context.Context, userID string, displayName string) error {
	res, err := s.db.ExecContext(ctx, "UPDATE users SET display_name = ? WHERE id = ?", displayName, userID)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrUserDoesNotExists
	}
	return nil
}

func (s *Store) GetUserInfo(ctx context.Context, userID string) (model.User, error) {
	var (
		user       model.User
		telegramID sql.NullInt64
	)
	err := s.db.QueryRowContext(
		ctx, "SELECT id, telegram_id, display_name FROM users WHERE id = ?", userID,
	).Scan(&user.UserID, &telegramID, &user.DisplayName)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, ErrUserDoesNotExists
	}
	if err != nil {
		return model.User{}, fmt.Errorf("failed to query user: %w", err)
	}
	user.TelegramID = telegramID.Int64
	return user, nil
}

func (s *Store) GetUserIDForTelegramUser(ctx context.Context, userTelegramID int64) (string, error) {
	var userID string
	err := s.db.QueryRowContext(ctx, "SELECT id FROM users WHERE telegram_id = ?", userTelegramID).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", model.ErrTelegramUserDoesNotExists
	}
	if err != nil {
		return "", fmt.Errorf("failed to query telegram user: %w", err)
	}
	return userID, nil
}
