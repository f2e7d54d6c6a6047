// Package mqtt owns the gateway's broker connection.
//
// This package manages:
//   - Connection to the broker with a bounded connect timeout
//   - Subscriptions reissued on every (re)connect
//   - A one-shot presence announcement after the subscriptions are active
//   - Automatic reconnection with capped exponential backoff
//   - Graceful and unconditional disconnect on shutdown
//
// # Connection state
//
// A Manager walks Disconnected -> Connecting -> Connected. A dropped link
// moves it to Reconnecting; each automatic attempt moves it to Connecting.
// Stop (or exhausting reconnect.max_attempts) returns it to Disconnected
// for good. Only the Manager changes the state; callers read it through
// State and IsConnected.
//
// # Sessions
//
// Clean sessions are used, so the broker forgets subscriptions when the
// link drops. The OnConnect handler therefore subscribes every topic on
// every connect, not only the first.
//
// # Usage
//
//	m, err := mqtt.New(mqtt.Options{
//	    Config:        cfg.MQTT,
//	    Subscriptions: []string{presence, inbound, outbound},
//	    Presence:      &mqtt.Message{Topic: presence, Payload: online},
//	    Logger:        logger,
//	})
//	m.OnMessageReceived(func(topic string, payload []byte) error {
//	    return route(topic, payload)
//	})
//	if err := m.Start(ctx); err != nil {
//	    return err
//	}
//	defer m.Stop(ctx)
package mqtt
