package telegram

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Source identifies who produced an envelope.
type Source string

const (
	// SourceInternal marks envelopes the gateway produces about itself,
	// such as the presence announcement.
	SourceInternal Source = "Internal"

	// SourceChatChannel marks envelopes carrying a chat user's message.
	SourceChatChannel Source = "ChatChannel"
)

// presenceMessage is the text of the startup announcement.
const presenceMessage = "Online"

// Envelope is the wire payload exchanged with the broker.
//
//	{"device":"12345","source":"ChatChannel","message":"hello"}
//
// Device is the chat conversation id for chat traffic, or the gateway's
// client id for internal traffic.
type Envelope struct {
	Device  string `json:"device"`
	Source  Source `json:"source"`
	Message string `json:"message"`
}

// ChatEnvelope builds the envelope for a message received from a chat user.
func ChatEnvelope(conversationID int64, text string) Envelope {
	return Envelope{
		Device:  strconv.FormatInt(conversationID, 10),
		Source:  SourceChatChannel,
		Message: text,
	}
}

// PresenceEnvelope builds the "Online" announcement for clientID.
func PresenceEnvelope(clientID string) Envelope {
	return Envelope{
		Device:  clientID,
		Source:  SourceInternal,
		Message: presenceMessage,
	}
}

// IsEmpty reports whether the envelope carries no actionable text.
func (e Envelope) IsEmpty() bool {
	return strings.TrimSpace(e.Message) == ""
}

// ConversationID parses Device as a chat conversation id.
func (e Envelope) ConversationID() (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(e.Device), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidConversation, e.Device)
	}
	return id, nil
}

// Encode serialises an envelope to JSON.
//
// Non-ASCII text is written as raw UTF-8 and HTML-sensitive characters
// (<, >, &) are left unescaped, so chat text reaches broker consumers as
// typed.
func Encode(e Envelope) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(e); err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// DecodeError describes a broker payload that could not be decoded.
// It unwraps to ErrDecode.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("telegram: decode envelope: %s: %v", e.Reason, e.Err)
	}
	return "telegram: decode envelope: " + e.Reason
}

// Unwrap allows errors.Is(err, ErrDecode) and access to the JSON error.
func (e *DecodeError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrDecode, e.Err}
	}
	return []error{ErrDecode}
}

// wireEnvelope distinguishes absent fields from empty ones.
type wireEnvelope struct {
	Device  *string `json:"device"`
	Source  *Source `json:"source"`
	Message *string `json:"message"`
}

// Decode parses a broker payload. device and source are required; a
// missing message decodes as empty. Unrecognised source values are kept
// as-is.
func Decode(data []byte) (Envelope, error) {
	var w wireEnvelope
	if err := json.Unmarshal(data, &w); err != nil {
		return Envelope{}, &DecodeError{Reason: "invalid JSON", Err: err}
	}
	if w.Device == nil {
		return Envelope{}, &DecodeError{Reason: "missing field \"device\""}
	}
	if w.Source == nil {
		return Envelope{}, &DecodeError{Reason: "missing field \"source\""}
	}

	e := Envelope{Device: *w.Device, Source: *w.Source}
	if w.Message != nil {
		e.Message = *w.Message
	}
	return e, nil
}
