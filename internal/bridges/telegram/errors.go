package telegram

import "errors"

// Domain errors for the Telegram bridge package.
var (
	// ErrDecode is returned (wrapped in a *DecodeError) when a broker
	// payload is not a valid envelope.
	ErrDecode = errors.New("telegram: invalid envelope")

	// ErrInvalidConversation is returned when an envelope's device field
	// is not a numeric chat conversation id.
	ErrInvalidConversation = errors.New("telegram: invalid conversation id")

	// ErrInvalidTopics is returned when the topic set is incomplete or
	// ambiguous.
	ErrInvalidTopics = errors.New("telegram: invalid topic set")

	// ErrAlreadyStarted is returned by Start on a running bridge.
	ErrAlreadyStarted = errors.New("telegram: bridge already started")
)
