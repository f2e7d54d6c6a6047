package mqtt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/telegram-gateway/internal/infrastructure/config"
)

// Logger interface for logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// MessageHandler is the callback signature for received messages.
//
// Handlers are invoked on paho's delivery goroutines and may run
// concurrently with each other. A returned error is logged.
type MessageHandler func(topic string, payload []byte) error

// Message is a fully specified publish.
type Message struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

// Options configures a Manager.
type Options struct {
	// Config is the broker connection configuration.
	Config config.MQTTConfig

	// Subscriptions are the topic filters (re)subscribed on every connect.
	Subscriptions []string

	// Presence, if set, is published once by Start after the
	// subscriptions are active.
	Presence *Message

	// Logger receives connection lifecycle logs. Optional.
	Logger Logger
}

// Manager owns the broker connection lifecycle: connect, subscribe,
// presence announcement, reconnection and disconnect.
//
// The connection state is owned exclusively by the Manager; other
// components observe it through State and IsConnected.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Subscriptions are reissued from the OnConnect handler on every connect.
type Manager struct {
	cfg           config.MQTTConfig
	subscriptions []string
	presence      *Message
	logger        Logger

	// newClient builds the paho client; replaced in tests.
	newClient func(*pahomqtt.ClientOptions) pahomqtt.Client

	lifecycleMu sync.Mutex
	client      pahomqtt.Client
	started     bool
	stopped     bool

	// halted is set once the manager must ignore further connection events
	// (after Stop, or when reconnect attempts are exhausted).
	halted atomic.Bool

	state      atomic.Int32
	connects   atomic.Int64
	reconnects atomic.Int64
	attempts   atomic.Int32

	// ready carries the subscription result of the latest OnConnect.
	ready chan error

	handlerMu   sync.RWMutex
	onMessage   MessageHandler
	onConnected func()
}

// New creates a Manager. It does not connect; call Start.
func New(opts Options) (*Manager, error) {
	if opts.Config.Broker.ClientID == "" {
		return nil, errors.New("mqtt: client id is required")
	}
	if opts.Config.QoS < 0 || opts.Config.QoS > maxQoS {
		return nil, ErrInvalidQoS
	}
	for _, topic := range opts.Subscriptions {
		if err := validateTopicFilter(topic); err != nil {
			return nil, err
		}
	}
	if opts.Presence != nil {
		if err := validatePublishTopic(opts.Presence.Topic); err != nil {
			return nil, fmt.Errorf("presence: %w", err)
		}
		if opts.Presence.QoS > maxQoS {
			return nil, fmt.Errorf("presence: %w", ErrInvalidQoS)
		}
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Manager{
		cfg:           opts.Config,
		subscriptions: append([]string(nil), opts.Subscriptions...),
		presence:      opts.Presence,
		logger:        logger,
		newClient:     pahomqtt.NewClient,
		ready:         make(chan error, 1),
	}, nil
}

// OnMessageReceived registers the single handler invoked for every inbound
// application message, regardless of topic. Register before Start.
func (m *Manager) OnMessageReceived(handler MessageHandler) {
	m.handlerMu.Lock()
	m.onMessage = handler
	m.handlerMu.Unlock()
}

// OnConnected registers a callback fired after every successful
// (re)connection, once the subscriptions have been reissued.
func (m *Manager) OnConnected(callback func()) {
	m.handlerMu.Lock()
	m.onConnected = callback
	m.handlerMu.Unlock()
}

// Start connects to the broker and brings the bridge topics online.
//
// It performs, in order:
//  1. Connect with the configured timeout
//  2. Wait for the OnConnect handler to subscribe every topic
//  3. Publish the presence message (failure is logged, not returned)
//  4. If the client still reports not-connected, one explicit reconnect
//
// Start may be called once.
func (m *Manager) Start(ctx context.Context) error {
	client, err := m.init()
	if err != nil {
		return err
	}

	m.setState(StateConnecting)
	if err := m.connect(ctx, client); err != nil {
		m.setState(StateDisconnected)
		return err
	}

	if err := m.awaitSubscriptions(ctx); err != nil {
		client.Disconnect(0)
		m.setState(StateDisconnected)
		return err
	}

	announced := m.announcePresence()

	if !client.IsConnected() {
		m.logger.Warn("mqtt not connected after start, reconnecting", "broker", brokerURL(m.cfg))
		m.setState(StateConnecting)
		if err := m.connect(ctx, client); err != nil {
			m.logger.Error("mqtt reconnect failed", "error", err)
			return nil
		}
		if !announced {
			if err := m.awaitSubscriptions(ctx); err != nil {
				m.logger.Error("mqtt resubscribe after reconnect failed", "error", err)
				return nil
			}
			m.announcePresence()
		}
	}

	return nil
}

// init builds the paho client with the Manager's event handlers installed.
func (m *Manager) init() (pahomqtt.Client, error) {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()

	if m.stopped {
		return nil, ErrStopped
	}
	if m.started {
		return nil, ErrAlreadyStarted
	}
	m.started = true

	opts := buildClientOptions(m.cfg)
	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		m.handleConnect()
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		m.handleConnectionLost(err)
	})
	opts.SetReconnectingHandler(func(_ pahomqtt.Client, _ *pahomqtt.ClientOptions) {
		m.handleReconnecting()
	})
	opts.SetDefaultPublishHandler(m.dispatch)

	m.client = m.newClient(opts)
	return m.client, nil
}

// connect issues a Connect and waits for the broker ack.
func (m *Manager) connect(ctx context.Context, client pahomqtt.Client) error {
	// Drop any result left over from an earlier connection.
	select {
	case <-m.ready:
	default:
	}

	timeout := connectTimeout(m.cfg)
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	token := client.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrConnectionFailed, ctx.Err())
	case <-timer.C:
		return fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	return nil
}

// awaitSubscriptions waits for handleConnect to report the subscription result.
func (m *Manager) awaitSubscriptions(ctx context.Context) error {
	timeout := connectTimeout(m.cfg) + defaultPublishTimeout
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-m.ready:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("%w: waiting for subscriptions", ErrTimeout)
	}
}

// announcePresence publishes the presence message if one is configured.
// It reports whether the message went out.
func (m *Manager) announcePresence() bool {
	if m.presence == nil {
		return true
	}
	p := m.presence
	if err := m.Publish(p.Topic, p.Payload, p.QoS, p.Retained); err != nil {
		m.logger.Warn("presence announcement failed", "topic", p.Topic, "error", err)
		return false
	}
	m.logger.Info("presence announced", "topic", p.Topic)
	return true
}

// handleConnect is called by paho on every successful (re)connection.
func (m *Manager) handleConnect() {
	if m.halted.Load() {
		return
	}

	if m.connects.Add(1) > 1 {
		m.reconnects.Add(1)
	}
	m.attempts.Store(0)
	m.setState(StateConnected)

	err := m.subscribeAll()
	if err != nil {
		m.logger.Error("mqtt subscribe failed", "error", err)
	} else {
		m.logger.Info("mqtt connected",
			"broker", brokerURL(m.cfg),
			"client_id", m.cfg.Broker.ClientID,
			"subscriptions", len(m.subscriptions),
		)
	}

	select {
	case m.ready <- err:
	default:
	}

	m.handlerMu.RLock()
	callback := m.onConnected
	m.handlerMu.RUnlock()
	if callback != nil {
		callback()
	}
}

// subscribeAll subscribes every configured topic, waiting for each ack.
func (m *Manager) subscribeAll() error {
	client := m.pahoClient()
	qos := byte(m.cfg.QoS)

	var errs []error
	for _, topic := range m.subscriptions {
		token := client.Subscribe(topic, qos, m.dispatch)
		if !token.WaitTimeout(defaultPublishTimeout) {
			errs = append(errs, fmt.Errorf("%w: %s: timeout after %v", ErrSubscribeFailed, topic, defaultPublishTimeout))
			continue
		}
		if err := token.Error(); err != nil {
			errs = append(errs, fmt.Errorf("%w: %s: %w", ErrSubscribeFailed, topic, err))
		}
	}

	return errors.Join(errs...)
}

// handleConnectionLost is called by paho when the link drops.
func (m *Manager) handleConnectionLost(err error) {
	if m.halted.Load() {
		return
	}
	m.setState(StateReconnecting)
	m.logger.Warn("mqtt connection lost", "error", err)
}

// handleReconnecting is called by paho before each automatic reconnect attempt.
func (m *Manager) handleReconnecting() {
	if m.halted.Load() {
		return
	}

	attempt := m.attempts.Add(1)
	limit := m.cfg.Reconnect.MaxAttempts
	if limit > 0 && int(attempt) > limit {
		m.halted.Store(true)
		m.setState(StateDisconnected)
		m.logger.Error("mqtt reconnect attempts exhausted, giving up", "attempts", limit)
		// Disconnect(0) returns immediately; paho abandons the pending attempt.
		m.pahoClient().Disconnect(0)
		return
	}

	m.setState(StateConnecting)
	m.logger.Info("mqtt reconnecting", "attempt", attempt)
}

// dispatch delivers a received message to the registered handler.
// A panicking or failing handler only loses the current message.
func (m *Manager) dispatch(_ pahomqtt.Client, msg pahomqtt.Message) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("MQTT handler panic recovered",
				"topic", msg.Topic(),
				"panic", r,
			)
		}
	}()

	m.handlerMu.RLock()
	handler := m.onMessage
	m.handlerMu.RUnlock()
	if handler == nil {
		m.logger.Debug("MQTT message dropped, no handler", "topic", msg.Topic())
		return
	}

	if err := handler(msg.Topic(), msg.Payload()); err != nil {
		m.logger.Warn("MQTT handler returned error",
			"topic", msg.Topic(),
			"error", err,
		)
	}
}

// Publish sends a message to the specified topic.
//
// QoS Levels:
//   - 0: At most once (fire and forget)
//   - 1: At least once (guaranteed delivery, may duplicate)
//   - 2: Exactly once (guaranteed, no duplicates, higher overhead)
//
// Failures are returned to the caller and never retried here.
func (m *Manager) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if err := validatePublishTopic(topic); err != nil {
		return err
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}

	client := m.pahoClient()
	if client == nil || !client.IsConnected() {
		return ErrNotConnected
	}

	token := client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	return nil
}

// Stop disconnects from the broker. The manager cannot be restarted.
//
// If ctx is already cancelled (process shutdown), a graceful disconnect
// with a normal-disconnection reason is issued first. The unconditional
// Disconnect(0) always follows and is a no-op when already disconnected.
func (m *Manager) Stop(ctx context.Context) error {
	m.lifecycleMu.Lock()
	if m.stopped {
		m.lifecycleMu.Unlock()
		return nil
	}
	m.stopped = true
	client := m.client
	m.lifecycleMu.Unlock()

	m.halted.Store(true)

	if client != nil {
		if ctx.Err() != nil {
			m.logger.Info("mqtt disconnecting", "reason", "normal_disconnection")
			client.Disconnect(defaultDisconnectQuiesce)
		}
		client.Disconnect(0)
	}

	m.setState(StateDisconnected)
	return nil
}

// HealthCheck reports whether the broker connection is up.
func (m *Manager) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}

	if !m.IsConnected() {
		return fmt.Errorf("%w (state %s)", ErrNotConnected, m.State())
	}

	return nil
}

// IsConnected reports whether the manager is in the Connected state and
// the underlying client agrees.
func (m *Manager) IsConnected() bool {
	if m.State() != StateConnected {
		return false
	}
	client := m.pahoClient()
	return client != nil && client.IsConnected()
}

// State returns the current connection state.
func (m *Manager) State() ConnectionState {
	return ConnectionState(m.state.Load())
}

// ReconnectCount returns the number of successful reconnections since Start.
func (m *Manager) ReconnectCount() int64 {
	return m.reconnects.Load()
}

func (m *Manager) setState(s ConnectionState) {
	prev := ConnectionState(m.state.Swap(int32(s)))
	if prev != s {
		m.logger.Debug("mqtt state changed", "from", prev.String(), "to", s.String())
	}
}

func (m *Manager) pahoClient() pahomqtt.Client {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()
	return m.client
}
