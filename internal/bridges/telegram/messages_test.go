package telegram

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestEncode(t *testing.T) {
	tests := []struct {
		name string
		env  Envelope
		want string
	}{
		{
			name: "chat message",
			env:  ChatEnvelope(999, "hello"),
			want: `{"device":"999","source":"ChatChannel","message":"hello"}`,
		},
		{
			name: "presence",
			env:  PresenceEnvelope("gateway-01"),
			want: `{"device":"gateway-01","source":"Internal","message":"Online"}`,
		},
		{
			name: "non-ASCII stays literal",
			env:  ChatEnvelope(1, "olá, são 5°C ☀"),
			want: `{"device":"1","source":"ChatChannel","message":"olá, são 5°C ☀"}`,
		},
		{
			name: "HTML characters not escaped",
			env:  ChatEnvelope(1, "a < b && c > d"),
			want: `{"device":"1","source":"ChatChannel","message":"a < b && c > d"}`,
		},
		{
			name: "quotes and newlines escaped",
			env:  ChatEnvelope(1, "say \"hi\"\nbye"),
			want: `{"device":"1","source":"ChatChannel","message":"say \"hi\"\nbye"}`,
		},
		{
			name: "negative group chat id",
			env:  ChatEnvelope(-1001234567890, "group"),
			want: `{"device":"-1001234567890","source":"ChatChannel","message":"group"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Encode(tt.env)
			if err != nil {
				t.Fatalf("Encode() error = %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("Encode() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestEncode_NoEscapeSequences(t *testing.T) {
	got, err := Encode(ChatEnvelope(1, "日本語"))
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if strings.Contains(string(got), `\u`) {
		t.Errorf("Encode() = %s, contains numeric escape", got)
	}
	if strings.HasSuffix(string(got), "\n") {
		t.Error("Encode() output has trailing newline")
	}
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name string
		data string
		want Envelope
	}{
		{
			name: "outbound",
			data: `{"device":"12345","source":"Internal","message":"Online"}`,
			want: Envelope{Device: "12345", Source: SourceInternal, Message: "Online"},
		},
		{
			name: "field order and whitespace",
			data: " {\n\"message\": \"hi\", \"source\": \"ChatChannel\", \"device\": \"7\"}\n",
			want: Envelope{Device: "7", Source: SourceChatChannel, Message: "hi"},
		},
		{
			name: "missing message decodes empty",
			data: `{"device":"7","source":"Internal"}`,
			want: Envelope{Device: "7", Source: SourceInternal},
		},
		{
			name: "unknown source kept",
			data: `{"device":"7","source":"Telegram","message":"hi"}`,
			want: Envelope{Device: "7", Source: Source("Telegram"), Message: "hi"},
		},
		{
			name: "extra fields ignored",
			data: `{"device":"7","source":"Internal","message":"hi","ts":1}`,
			want: Envelope{Device: "7", Source: SourceInternal, Message: "hi"},
		},
		{
			name: "unicode escapes resolved",
			data: `{"device":"7","source":"Internal","message":"ol\u00e1"}`,
			want: Envelope{Device: "7", Source: SourceInternal, Message: "olá"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.data))
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Decode() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name       string
		data       string
		wantReason string
	}{
		{"malformed JSON", `{"device":"1",`, "invalid JSON"},
		{"not an object", `["device"]`, "invalid JSON"},
		{"empty payload", ``, "invalid JSON"},
		{"plain text", `Online`, "invalid JSON"},
		{"wrong field type", `{"device":12345,"source":"Internal","message":"x"}`, "invalid JSON"},
		{"missing device", `{"source":"Internal","message":"x"}`, `missing field "device"`},
		{"missing source", `{"device":"1","message":"x"}`, `missing field "source"`},
		{"null device", `{"device":null,"source":"Internal","message":"x"}`, `missing field "device"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.data))
			if err == nil {
				t.Fatal("Decode() error = nil")
			}
			if !errors.Is(err, ErrDecode) {
				t.Errorf("Decode() error = %v, want ErrDecode", err)
			}
			var de *DecodeError
			if !errors.As(err, &de) {
				t.Fatalf("Decode() error type = %T, want *DecodeError", err)
			}
			if de.Reason != tt.wantReason {
				t.Errorf("Reason = %q, want %q", de.Reason, tt.wantReason)
			}
		})
	}
}

func TestDecode_WrapsJSONError(t *testing.T) {
	_, err := Decode([]byte(`{"device":1}`))

	var typeErr *json.UnmarshalTypeError
	if !errors.As(err, &typeErr) {
		t.Errorf("Decode() error = %v, want wrapped *json.UnmarshalTypeError", err)
	}
}

func TestRoundTrip(t *testing.T) {
	envelopes := []Envelope{
		ChatEnvelope(999, "hello"),
		PresenceEnvelope("gateway-01"),
		ChatEnvelope(42, "olá <b>mundo</b> & 🌍"),
		{Device: "x", Source: SourceInternal, Message: ""},
		{Device: "", Source: SourceChatChannel, Message: "\t tabs \\ backslash"},
	}

	for _, want := range envelopes {
		data, err := Encode(want)
		if err != nil {
			t.Fatalf("Encode(%+v) error = %v", want, err)
		}
		got, err := Decode(data)
		if err != nil {
			t.Fatalf("Decode(%s) error = %v", data, err)
		}
		if got != want {
			t.Errorf("round trip = %+v, want %+v", got, want)
		}
	}
}

func TestEnvelope_IsEmpty(t *testing.T) {
	tests := []struct {
		message string
		want    bool
	}{
		{"", true},
		{"   ", true},
		{"\n\t", true},
		{"x", false},
		{" hi ", false},
	}

	for _, tt := range tests {
		env := Envelope{Device: "1", Source: SourceInternal, Message: tt.message}
		if got := env.IsEmpty(); got != tt.want {
			t.Errorf("IsEmpty(%q) = %v, want %v", tt.message, got, tt.want)
		}
	}
}

func TestEnvelope_ConversationID(t *testing.T) {
	tests := []struct {
		device  string
		want    int64
		wantErr bool
	}{
		{"12345", 12345, false},
		{"-1001234567890", -1001234567890, false},
		{" 42 ", 42, false},
		{"abc", 0, true},
		{"", 0, true},
		{"12.5", 0, true},
		{"99999999999999999999", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.device, func(t *testing.T) {
			got, err := Envelope{Device: tt.device}.ConversationID()
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidConversation) {
					t.Errorf("ConversationID() error = %v, want ErrInvalidConversation", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ConversationID() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("ConversationID() = %d, want %d", got, tt.want)
			}
		})
	}
}
