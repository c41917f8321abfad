package model

import "errors"

var (
	ErrQuotaExhausted   = errors.New("daily quota exhausted")
	ErrStorage          = errors.New("storage error")
	ErrModelUnavailable = errors.New("model backend unavailable")
	ErrModelRateLimited = errors.New("model backend rate limited")
	ErrModelMalformed   = errors.New("model backend returned malformed response")
	ErrInitialization   = errors.New("session initialization failed")

	ErrEmptyMessage     = errors.New("message is empty")
	ErrMessageTooLong   = errors.New("message is too long")
	ErrExchangeInFlight = errors.New("another exchange is in flight")
	ErrSessionClosed    = errors.New("session is closed")

	ErrTelegramUserDoesNotExists = errors.New("telegram user doesn't exists")
)
