package model

// Subscription is a live, ordered view over a chat log partition. Every value
// on Updates is the full ordered history and replaces the previous one.
// Close must be called to release the listener.
type Subscription interface {
	Updates() <-chan []ChatMessage
	Close() error
}
