// Package telegram relays messages between an MQTT broker and Telegram chats.
//
// # Architecture
//
//	┌─────────────────┐          ┌─────────────────┐           ┌──────────┐
//	│   MQTT broker   │◄────────►│  Bridge (this)  │◄─────────►│ Telegram │
//	└─────────────────┘          └─────────────────┘  Bot API  └──────────┘
//
// The broker side is an mqtt.Manager and the chat side a tgbot.Adapter. The
// Bridge registers one callback on each and holds no other mutable state
// than its counters.
//
// # Wire format
//
// Every broker payload is a JSON envelope:
//
//	{"device":"12345","source":"ChatChannel","message":"hello"}
//
// Chat text is encoded as raw UTF-8 with no HTML escaping. See Encode and
// Decode.
//
// # Topics
//
// Three configured topics, all subscribed:
//
//   - presence: "Online" is announced here once at startup; received
//     messages are ignored
//   - inbound: chat messages are published here; received messages are
//     the gateway's own echo and are ignored
//   - outbound: received envelopes are sent to the chat whose id is in
//     the device field
//
// Topics are matched by substring containment (see Router.Classify).
//
// # Failure handling
//
// Decode errors, non-numeric device ids, publish failures and send failures
// are logged and counted; the message is dropped and the next one is
// handled normally. Nothing is retried.
package telegram
