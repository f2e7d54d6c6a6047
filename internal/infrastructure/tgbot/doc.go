// Package tgbot adapts the Telegram Bot API to the gateway.
//
// An Adapter long-polls for updates, hands every text message to a single
// registered callback as a TextMessage, and sends text replies keyed by
// chat id. Non-text updates (photos, stickers, edits, callbacks) are
// dropped before they reach the callback.
package tgbot
