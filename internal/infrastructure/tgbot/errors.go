package tgbot

import "errors"

// Domain-specific errors for Telegram operations.
var (
	// ErrConnectionFailed is returned when the bot token cannot be verified.
	ErrConnectionFailed = errors.New("tgbot: connection failed")

	// ErrSendFailed is returned when a message could not be delivered.
	ErrSendFailed = errors.New("tgbot: send failed")

	// ErrEmptyText is returned when sending a message with no text.
	ErrEmptyText = errors.New("tgbot: message text is empty")

	// ErrNotRunning is returned by HealthCheck when the receive loop is not active.
	ErrNotRunning = errors.New("tgbot: receive loop not running")

	// ErrAlreadyStarted is returned when Start is called more than once.
	ErrAlreadyStarted = errors.New("tgbot: adapter already started")
)
