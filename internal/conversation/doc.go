// Package conversation keeps a registry of the Telegram chats the gateway
// has relayed messages for.
//
// The registry is informational: the bridge records each successful relay
// best-effort, and the status API lists the result. Nothing in the relay
// path reads it.
package conversation
