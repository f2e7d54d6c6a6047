package telegram

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/telegram-gateway/internal/infrastructure/config"
	"github.com/nerrad567/telegram-gateway/internal/infrastructure/mqtt"
	"github.com/nerrad567/telegram-gateway/internal/infrastructure/tgbot"
)

// Bridge operation constants.
const (
	// sendTimeout bounds a single chat send.
	sendTimeout = 15 * time.Second

	// registryTimeout bounds a single conversation registry write.
	registryTimeout = 2 * time.Second
)

// Relay directions and results reported to telemetry.
const (
	DirectionChatToBroker = "chat_to_broker"
	DirectionBrokerToChat = "broker_to_chat"

	ResultOK           = "ok"
	ResultDecodeError  = "decode_error"
	ResultParseError   = "parse_error"
	ResultEmpty        = "empty"
	ResultPublishError = "publish_error"
	ResultSendError    = "send_error"
)

// Logger interface for logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Broker is the broker connection the bridge relays through.
// Satisfied by *mqtt.Manager.
type Broker interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Publish(topic string, payload []byte, qos byte, retained bool) error
	OnMessageReceived(handler mqtt.MessageHandler)
	IsConnected() bool
	State() mqtt.ConnectionState
	ReconnectCount() int64
}

// Chat is the chat channel the bridge relays through.
// Satisfied by *tgbot.Adapter.
type Chat interface {
	Start(ctx context.Context) error
	Stop()
	Send(ctx context.Context, conversationID int64, text string) error
	OnTextMessageReceived(handler tgbot.TextHandler)
	IsRunning() bool
}

// ConversationRegistry records which conversations the bridge has relayed
// for. Satisfied by *conversation.SQLiteRepository. Optional.
type ConversationRegistry interface {
	RecordInbound(ctx context.Context, id int64, sender string) error
	RecordOutbound(ctx context.Context, id int64) error
}

// Telemetry receives one point per relay attempt. Satisfied by
// *influxdb.Client. Optional.
type Telemetry interface {
	WriteRelay(direction, result string, bytes int)
}

// BridgeOptions holds configuration for creating a bridge.
type BridgeOptions struct {
	// Router classifies broker topics. Required.
	Router *Router

	// Broker is the broker connection. Required.
	Broker Broker

	// Chat is the chat channel. Required.
	Chat Chat

	// QoS and Retain apply to chat-originated publishes.
	QoS    byte
	Retain bool

	// Registry is optional. If nil, conversations are not recorded.
	Registry ConversationRegistry

	// Telemetry is optional. If nil, no relay points are written.
	Telemetry Telemetry

	// Logger is optional structured logger.
	Logger Logger
}

// Bridge relays messages between the broker and the chat channel.
//
// Chat messages are wrapped in an envelope and published to the Inbound
// topic. Broker messages on the Outbound topic are decoded and sent to the
// conversation named by the envelope's device field. Every other topic is
// ignored.
//
// Failures on either path are logged, counted and dropped. Nothing is
// retried and a failing message never affects the next one.
//
// Thread Safety: the two relay directions run on their transports'
// goroutines and may run concurrently. All shared state is atomic.
type Bridge struct {
	router    *Router
	broker    Broker
	chat      Chat
	qos       byte
	retain    bool
	registry  ConversationRegistry
	telemetry Telemetry
	logger    Logger

	mu        sync.Mutex
	started   bool
	startedAt time.Time
	stopOnce  sync.Once

	// Bridge-level context, cancelled on Stop to abort in-flight sends.
	ctx       context.Context
	ctxCancel context.CancelFunc

	metrics counters
}

type counters struct {
	chatReceived   atomic.Uint64
	published      atomic.Uint64
	publishErrors  atomic.Uint64
	brokerReceived atomic.Uint64
	forwarded      atomic.Uint64
	sent           atomic.Uint64
	sendErrors     atomic.Uint64
	decodeErrors   atomic.Uint64
	parseErrors    atomic.Uint64
	droppedEmpty   atomic.Uint64
	ignored        atomic.Uint64
	panics         atomic.Uint64
}

// NewBridge creates a new bridge instance.
// Call Start() to begin operation.
func NewBridge(opts BridgeOptions) (*Bridge, error) {
	if opts.Router == nil {
		return nil, fmt.Errorf("router is required")
	}
	if opts.Broker == nil {
		return nil, fmt.Errorf("broker is required")
	}
	if opts.Chat == nil {
		return nil, fmt.Errorf("chat is required")
	}
	if opts.QoS > 2 {
		return nil, fmt.Errorf("qos %d out of range", opts.QoS)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	ctx, ctxCancel := context.WithCancel(context.Background())

	return &Bridge{
		router:    opts.Router,
		broker:    opts.Broker,
		chat:      opts.Chat,
		qos:       opts.QoS,
		retain:    opts.Retain,
		registry:  opts.Registry,
		telemetry: opts.Telemetry,
		logger:    logger,
		ctx:       ctx,
		ctxCancel: ctxCancel,
	}, nil
}

// BrokerOptions returns the mqtt.Manager options the bridge needs: the
// router's subscriptions and the encoded presence announcement for the
// configured client id.
func BrokerOptions(cfg config.MQTTConfig, router *Router, logger Logger) (mqtt.Options, error) {
	payload, err := Encode(PresenceEnvelope(cfg.Broker.ClientID))
	if err != nil {
		return mqtt.Options{}, err
	}

	return mqtt.Options{
		Config:        cfg,
		Subscriptions: router.Subscriptions(),
		Presence: &mqtt.Message{
			Topic:   router.PresenceTopic(),
			Payload: payload,
		},
		Logger: logger,
	}, nil
}

// Start registers the relay handlers, then starts the broker connection
// (connect, subscribe, announce) and the chat receive loop, in that order.
// If the chat loop fails to start, the broker connection is stopped again.
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.started {
		return ErrAlreadyStarted
	}

	b.broker.OnMessageReceived(b.handleBrokerMessage)
	b.chat.OnTextMessageReceived(b.handleChatMessage)

	if err := b.broker.Start(ctx); err != nil {
		return fmt.Errorf("start broker: %w", err)
	}
	if err := b.chat.Start(ctx); err != nil {
		if stopErr := b.broker.Stop(context.Background()); stopErr != nil {
			b.logger.Warn("broker stop after failed start", "error", stopErr)
		}
		return fmt.Errorf("start chat: %w", err)
	}

	b.started = true
	b.startedAt = time.Now()
	b.logger.Info("bridge started",
		"presence_topic", b.router.presence,
		"inbound_topic", b.router.inbound,
		"outbound_topic", b.router.outbound,
	)

	return nil
}

// Stop shuts the bridge down: in-flight sends are aborted, the chat loop
// ends, then the broker disconnects. ctx is passed to the broker; when it
// is already cancelled the broker disconnects gracefully first.
func (b *Bridge) Stop(ctx context.Context) error {
	var err error
	b.stopOnce.Do(func() {
		b.ctxCancel()

		b.mu.Lock()
		started := b.started
		b.mu.Unlock()
		if !started {
			return
		}

		b.chat.Stop()
		err = b.broker.Stop(ctx)

		b.logger.Info("bridge stopped")
	})
	return err
}

// handleChatMessage relays a chat text message to the broker.
func (b *Bridge) handleChatMessage(msg tgbot.TextMessage) {
	relayID := uuid.NewString()
	defer b.recoverPanic(DirectionChatToBroker, relayID)

	b.metrics.chatReceived.Add(1)

	env := ChatEnvelope(msg.ConversationID, msg.Text)
	payload, err := Encode(env)
	if err != nil {
		b.metrics.publishErrors.Add(1)
		b.logger.Error("failed to encode chat message", "relay_id", relayID, "error", err)
		return
	}

	topic := b.router.OutboundTopicFor(env)
	if err := b.broker.Publish(topic, payload, b.qos, b.retain); err != nil {
		b.metrics.publishErrors.Add(1)
		b.record(DirectionChatToBroker, ResultPublishError, len(payload))
		b.logger.Error("failed to publish chat message",
			"relay_id", relayID,
			"conversation_id", msg.ConversationID,
			"topic", topic,
			"error", err,
		)
		return
	}

	b.metrics.published.Add(1)
	b.record(DirectionChatToBroker, ResultOK, len(payload))
	b.logger.Debug("chat message published",
		"relay_id", relayID,
		"conversation_id", msg.ConversationID,
		"topic", topic,
		"bytes", len(payload),
	)

	if b.registry != nil {
		ctx, cancel := context.WithTimeout(b.ctx, registryTimeout)
		defer cancel()
		if err := b.registry.RecordInbound(ctx, msg.ConversationID, msg.Sender); err != nil {
			b.logger.Warn("failed to record conversation", "relay_id", relayID, "error", err)
		}
	}
}

// handleBrokerMessage classifies a broker message and forwards Outbound
// traffic to chat. It never returns an error: every failure is logged here.
func (b *Bridge) handleBrokerMessage(topic string, payload []byte) error {
	relayID := uuid.NewString()
	defer b.recoverPanic(DirectionBrokerToChat, relayID)

	b.metrics.brokerReceived.Add(1)

	switch route := b.router.Classify(topic); route {
	case RouteOutbound:
		b.forward(relayID, topic, payload)
	default:
		b.metrics.ignored.Add(1)
		b.logger.Debug("broker message ignored",
			"relay_id", relayID,
			"topic", topic,
			"route", route.String(),
		)
	}
	return nil
}

func (b *Bridge) forward(relayID, topic string, payload []byte) {
	b.metrics.forwarded.Add(1)

	env, err := Decode(payload)
	if err != nil {
		b.metrics.decodeErrors.Add(1)
		b.record(DirectionBrokerToChat, ResultDecodeError, len(payload))
		b.logger.Warn("dropping undecodable broker message",
			"relay_id", relayID,
			"topic", topic,
			"error", err,
		)
		return
	}

	if env.IsEmpty() {
		b.metrics.droppedEmpty.Add(1)
		b.record(DirectionBrokerToChat, ResultEmpty, len(payload))
		b.logger.Debug("dropping empty broker message", "relay_id", relayID, "device", env.Device)
		return
	}

	conversationID, err := env.ConversationID()
	if err != nil {
		b.metrics.parseErrors.Add(1)
		b.record(DirectionBrokerToChat, ResultParseError, len(payload))
		b.logger.Warn("dropping broker message with invalid device",
			"relay_id", relayID,
			"device", env.Device,
			"error", err,
		)
		return
	}

	ctx, cancel := context.WithTimeout(b.ctx, sendTimeout)
	defer cancel()

	if err := b.chat.Send(ctx, conversationID, env.Message); err != nil {
		b.metrics.sendErrors.Add(1)
		b.record(DirectionBrokerToChat, ResultSendError, len(payload))
		b.logger.Error("failed to send chat message",
			"relay_id", relayID,
			"conversation_id", conversationID,
			"error", err,
		)
		return
	}

	b.metrics.sent.Add(1)
	b.record(DirectionBrokerToChat, ResultOK, len(payload))
	b.logger.Debug("broker message sent to chat",
		"relay_id", relayID,
		"conversation_id", conversationID,
		"source", string(env.Source),
	)

	if b.registry != nil {
		rctx, rcancel := context.WithTimeout(b.ctx, registryTimeout)
		defer rcancel()
		if err := b.registry.RecordOutbound(rctx, conversationID); err != nil {
			b.logger.Warn("failed to record conversation", "relay_id", relayID, "error", err)
		}
	}
}

func (b *Bridge) record(direction, result string, bytes int) {
	if b.telemetry != nil {
		b.telemetry.WriteRelay(direction, result, bytes)
	}
}

// recoverPanic isolates a panicking message so later messages still flow.
func (b *Bridge) recoverPanic(direction, relayID string) {
	if r := recover(); r != nil {
		b.metrics.panics.Add(1)
		b.logger.Error("relay panic recovered",
			"relay_id", relayID,
			"direction", direction,
			"panic", r,
		)
	}
}

// BridgeMetrics contains metrics data for the API metrics endpoint.
type BridgeMetrics struct {
	ChatReceived   uint64 `json:"chat_received"`
	Published      uint64 `json:"published"`
	PublishErrors  uint64 `json:"publish_errors"`
	BrokerReceived uint64 `json:"broker_received"`
	Forwarded      uint64 `json:"forwarded"`
	Sent           uint64 `json:"sent"`
	SendErrors     uint64 `json:"send_errors"`
	DecodeErrors   uint64 `json:"decode_errors"`
	ParseErrors    uint64 `json:"parse_errors"`
	DroppedEmpty   uint64 `json:"dropped_empty"`
	Ignored        uint64 `json:"ignored"`
	Panics         uint64 `json:"panics"`

	BrokerState     string `json:"broker_state"`
	BrokerConnected bool   `json:"broker_connected"`
	Reconnects      int64  `json:"reconnects"`
	ChatRunning     bool   `json:"chat_running"`
	UptimeSeconds   int64  `json:"uptime_seconds"`
}

// GetMetrics returns current bridge metrics for the API metrics endpoint.
func (b *Bridge) GetMetrics() BridgeMetrics {
	b.mu.Lock()
	startedAt := b.startedAt
	b.mu.Unlock()

	var uptime int64
	if !startedAt.IsZero() {
		uptime = int64(time.Since(startedAt).Seconds())
	}

	return BridgeMetrics{
		ChatReceived:    b.metrics.chatReceived.Load(),
		Published:       b.metrics.published.Load(),
		PublishErrors:   b.metrics.publishErrors.Load(),
		BrokerReceived:  b.metrics.brokerReceived.Load(),
		Forwarded:       b.metrics.forwarded.Load(),
		Sent:            b.metrics.sent.Load(),
		SendErrors:      b.metrics.sendErrors.Load(),
		DecodeErrors:    b.metrics.decodeErrors.Load(),
		ParseErrors:     b.metrics.parseErrors.Load(),
		DroppedEmpty:    b.metrics.droppedEmpty.Load(),
		Ignored:         b.metrics.ignored.Load(),
		Panics:          b.metrics.panics.Load(),
		BrokerState:     b.broker.State().String(),
		BrokerConnected: b.broker.IsConnected(),
		Reconnects:      b.broker.ReconnectCount(),
		ChatRunning:     b.chat.IsRunning(),
		UptimeSeconds:   uptime,
	}
}

// Healthy reports whether both transports are up.
func (b *Bridge) Healthy() bool {
	return b.broker.IsConnected() && b.chat.IsRunning()
}

