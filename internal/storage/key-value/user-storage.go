package key_value

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/iamvkosarev/wellness-bot/internal/model"
	"github.com/redis/go-redis/v9"
)

var (
	ErrUserAlreadyExists = errors.New("user already exists")
	ErrUserDoesNotExists = errors.New("user doesn't exist")
)

type userInternal struct {
	UserID      string `json:"user_id"`
	TelegramID  int64  `json:"telegram_id"`
	DisplayName string `json:"display_name"`
}

type UserStorage struct {
	rdb *redis.Client
}

func NewUserStorage(rdb *redis.Client) *UserStorage {
	return &UserStorage{
		rdb: rdb,
	}
}

func (u *UserStorage) CreateNewTelegramUser(
	ctx context.Context,
	userTelegramID int64,
	displayName string,
) (string, error) {
	userID := uuid.NewString()
	userTelegramIDKey := getUserTelegramIDKey(userTelegramID)
	created, err := u.rdb.SetNX(ctx, userTelegramIDKey, userID, 0).Result()
	if err != nil {
		return "", fmt.Errorf("failed to save user %s: %w", userTelegramIDKey, err)
	}
	if !created {
		return "", ErrUserAlreadyExists
	}

	user := userInternal{
		TelegramID:  userTelegramID,
		UserID:      userID,
		DisplayName: displayName,
	}
	if err = u.setUser(ctx, userID, user); err != nil {
		return "", fmt.Errorf("failed to set user: %w", err)
	}
	return userID, nil
}

func (u *UserStorage) UpdateUserDisplayName(ctx context.Context, userID string, displayName string) error {
	user, err := u.getUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to get user: %w", err)
	}
	user.DisplayName = displayName
	if err = u.setUser(ctx, userID, user); err != nil {
		return fmt.Errorf("failed to set user: %w", err)
	}
	return nil
}

func (u *UserStorage) GetUserInfo(ctx context.Context, userID string) (model.User, error) {
	userInt, err := u.getUser(ctx, userID)
	if err != nil {
		return model.User{}, fmt.Errorf("failed to get user: %w", err)
	}
	user := model.User{
		UserID:      userInt.UserID,
		DisplayName: userInt.DisplayName,
		TelegramID:  userInt.TelegramID,
	}
	return user, nil
}

func (u *UserStorage) GetUserIDForTelegramUser(ctx context.Context, userTelegramID int64) (string, error) {
	userTelegramIDKey := getUserTelegramIDKey(userTelegramID)
	userID, err := u.rdb.Get(ctx, userTelegramIDKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", model.ErrTelegramUserDoesNotExists
		} else {
			return "", fmt.Errorf("failed to get telegram user id %s: %w", userTelegramIDKey, err)
		}
	}
	return userID, nil
}

func (u *UserStorage) getUser(ctx context.Context, userID string) (userInternal, error) {
	userIDKey := getUserIDKey(userID)
	userRaw, err := u.rdb.Get(ctx, userIDKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return userInternal{}, ErrUserDoesNotExists
		} else {
			return userInternal{}, fmt.Errorf("failed to get user %s: %w", userID, err)
		}
	}
	var user userInternal
	if err = json.Unmarshal([]byte(userRaw), &user); err != nil {
		return userInternal{}, fmt.Errorf("failed to unmarshal user %s: %w", userID, err)
	}
	return user, nil
}

func (u *UserStorage) setUser(ctx context.Context, userID string, userInt userInternal) error {
	userIDKey := getUserIDKey(userID)
	newUserJSON, err := json.Marshal(userInt)
	if err != nil {
		return fmt.Errorf("failed to marshal user: %w", err)
	}
	if err = u.rdb.Set(ctx, userIDKey, newUserJSON, 0).Err(); err != nil {
		return fmt.Errorf("failed to save user %s: %w", userID, err)
	}
	return nil
}

func getUserTelegramIDKey(id int64) string {
	return fmt.Sprintf("telegram_%d", id)
}

func getUserIDKey(id string) string {
	return fmt.Sprintf("user_%s", id)
}
