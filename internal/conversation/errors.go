package conversation

import "errors"

var (
	// ErrConversationNotFound is returned when a conversation id has no record.
	ErrConversationNotFound = errors.New("conversation not found")
)
