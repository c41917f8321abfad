package model

import "strings"

// User is the resolved identity handed over by an authentication collaborator.
type User struct {
	UserID      string
	DisplayName string
	Email       string
	TelegramID  int64
}

// FirstName returns the first word of the display name, falling back to the
// local part of the email and then to "User".
func (u User) FirstName() string {
	name := strings.TrimSpace(u.DisplayName)
	if name == "" {
		if local, _, ok := strings.Cut(u.Email, "@"); ok && local != "" {
			name = local
		}
	}
	if name == "" {
		return "User"
	}
	return strings.Fields(name)[0]
}
