package conversation

import "time"

// Conversation is one Telegram chat seen by the gateway.
type Conversation struct {
	// ID is the Telegram chat id. Negative for groups and channels.
	ID int64 `json:"id"`

	// Sender is the last known display name of the chat user, if any.
	Sender string `json:"sender,omitempty"`

	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`

	// InboundCount counts chat messages published to the broker.
	InboundCount int64 `json:"inbound_count"`

	// OutboundCount counts broker messages delivered to the chat.
	OutboundCount int64 `json:"outbound_count"`
}
