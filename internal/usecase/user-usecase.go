package usecase

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/iamvkosarev/wellness-bot/internal/model"
)

type UserStorage interface {
	GetUserIDForTelegramUser(ctx context.Context, userTelegramID int64) (string, error)
	CreateNewTelegramUser(ctx context.Context, userTelegramID int64, displayName string) (string, error)
	GetUserInfo(ctx context.Context, userID string) (model.User, error)
	UpdateUserDisplayName(ctx context.Context, userID string, displayName string) error
}

type UserUsecaseDeps struct {
	UserStorage UserStorage
}

type UserUsecase struct {
	UserUsecaseDeps
}

func NewUserUsecase(deps UserUsecaseDeps) *UserUsecase {
	return &UserUsecase{
		UserUsecaseDeps: deps,
	}
}

// GetUserInfoForTelegramUser resolves a telegram account to a user, creating
// the user on first contact.
func (u *UserUsecase) GetUserInfoForTelegramUser(
	ctx context.Context,
	userTelegramID int64,
	displayName string,
) (model.User, error) {
	userID, err := u.UserStorage.GetUserIDForTelegramUser(ctx, userTelegramID)
	if err != nil {
		if !errors.Is(err, model.ErrTelegramUserDoesNotExists) {
			return model.User{}, fmt.Errorf("failed to get telegram user: %w", err)
		}
		userID, err = u.UserStorage.CreateNewTelegramUser(ctx, userTelegramID, displayName)
		if err != nil {
			return model.User{}, fmt.Errorf("failed to create telegram user: %w", err)
		}
	}
	user, err := u.UserStorage.GetUserInfo(ctx, userID)
	if err != nil {
		return model.User{}, fmt.Errorf("failed to get user info: %w", err)
	}
	if displayName != "" && user.DisplayName != displayName {
		if err = u.UserStorage.UpdateUserDisplayName(ctx, userID, displayName); err != nil {
			log.Printf("[user] failed to update display name of %s: %v", userID, err)
		} else {
			user.DisplayName = displayName
		}
	}
	return user, nil
}

func (u *UserUsecase) GetUserInfo(ctx context.Context, userID string) (model.User, error) {
	user, err := u.UserStorage.GetUserInfo(ctx, userID)
	if err != nil {
		return model.User{}, err
	}
	return user, nil
}
