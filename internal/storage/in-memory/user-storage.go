package in_memory

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/iamvkosarev/wellness-bot/internal/model"
)

var (
	ErrUserAlreadyExists = errors.New("user already exists")
	ErrUserDoesNotExists = errors.New("user doesn't exists")
)

type UserStorage struct {
	mu               sync.RWMutex
	users            map[string]*model.User
	telegramUsersIDs map[int64]string
}

func NewUserStorage() *UserStorage {
	return &UserStorage{
		users:            make(map[string]*model.User),
		telegramUsersIDs: make(map[int64]string),
	}
}

func (u *UserStorage) CreateNewTelegramUser(
	_ context.Context,
	userTelegramID int64,
	displayName string,
) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if _, ok := u.telegramUsersIDs[userTelegramID]; ok {
		return "", ErrUserAlreadyExists
	}
	userID := uuid.NewString()
	u.telegramUsersIDs[userTelegramID] = userID
	u.users[userID] = &model.User{
		UserID:      userID,
		DisplayName: displayName,
		TelegramID:  userTelegramID,
	}
	return userID, nil
}

func (u *UserStorage) UpdateUserDisplayName(_ context.Context, userID string, displayName string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	user, ok := u.users[userID]
	if !ok {
		return ErrUserDoesNotExists
	}
	user.DisplayName = displayName
	return nil
}

func (u *UserStorage) GetUserInfo(_ context.Context, userID string) (model.User, error) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	user, ok := u.users[userID]
	if !ok {
		return model.User{}, ErrUserDoesNotExists
	}
	return *user, nil
}

func (u *UserStorage) GetUserIDForTelegramUser(_ context.Context, userTelegramID int64) (string, error) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	userID, ok := u.telegramUsersIDs[userTelegramID]
	if !ok {
		return "", model.ErrTelegramUserDoesNotExists
	}
	return userID, nil
}
