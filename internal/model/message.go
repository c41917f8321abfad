package model

import "time"

type MessageSender string

const (
	MessageSenderUser      = MessageSender("user")
	MessageSenderAssistant = MessageSender("assistant")
)

func ParseMessageSender(s string) (MessageSender, bool) {
	switch s {
	case string(MessageSenderUser):
		return MessageSenderUser, true
	case string(MessageSenderAssistant), "bot":
		return MessageSenderAssistant, true
	default:
		return "", false
	}
}

// ChatMessage is one displayed line of a conversation. It is immutable once
// appended to a chat log.
type ChatMessage struct {
	ID        string
	Sender    MessageSender
	Text      string
	Timestamp time.Time
}
