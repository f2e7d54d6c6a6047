package mqtt

import (
	"sync"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/telegram-gateway/internal/infrastructure/config"
)

// fakeToken is a pahomqtt.Token that is already complete.
type fakeToken struct {
	err  error
	done chan struct{}
}

func newFakeToken(err error) *fakeToken {
	t := &fakeToken{err: err, done: make(chan struct{})}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

// fakeMessage implements pahomqtt.Message.
type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 0 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 0 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

type publishedMessage struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

// fakeClient is a pahomqtt.Client that records calls and drives the
// handlers installed in the ClientOptions the way paho does.
type fakeClient struct {
	mu sync.Mutex

	opts *pahomqtt.ClientOptions

	connected    bool
	connectCalls int
	connectErr   error
	subscribeErr error
	publishErr   error

	// staleConnects is the number of upcoming successful connects that
	// leave IsConnected reporting false.
	staleConnects int

	events      []string
	disconnects []uint
	handlers    map[string]pahomqtt.MessageHandler
	published   []publishedMessage
}

func newFakeClient() *fakeClient {
	return &fakeClient{handlers: make(map[string]pahomqtt.MessageHandler)}
}

func (f *fakeClient) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeClient) IsConnectionOpen() bool { return f.IsConnected() }

func (f *fakeClient) Connect() pahomqtt.Token {
	f.mu.Lock()
	f.connectCalls++
	if f.connectErr != nil {
		err := f.connectErr
		f.mu.Unlock()
		return newFakeToken(err)
	}
	if f.staleConnects > 0 {
		f.staleConnects--
		f.connected = false
	} else {
		f.connected = true
	}
	f.events = append(f.events, "connect")
	onConnect := f.opts.OnConnect
	f.mu.Unlock()

	// paho runs OnConnect on its own goroutine.
	if onConnect != nil {
		go onConnect(f)
	}
	return newFakeToken(nil)
}

func (f *fakeClient) Disconnect(quiesce uint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	f.disconnects = append(f.disconnects, quiesce)
}

func (f *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return newFakeToken(f.publishErr)
	}
	b, _ := payload.([]byte)
	f.events = append(f.events, "publish:"+topic)
	f.published = append(f.published, publishedMessage{topic: topic, qos: qos, retained: retained, payload: b})
	return newFakeToken(nil)
}

func (f *fakeClient) Subscribe(topic string, _ byte, callback pahomqtt.MessageHandler) pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, "subscribe:"+topic)
	if f.subscribeErr != nil {
		return newFakeToken(f.subscribeErr)
	}
	f.handlers[topic] = callback
	return newFakeToken(nil)
}

func (f *fakeClient) SubscribeMultiple(map[string]byte, pahomqtt.MessageHandler) pahomqtt.Token {
	return newFakeToken(nil)
}

func (f *fakeClient) Unsubscribe(...string) pahomqtt.Token { return newFakeToken(nil) }

func (f *fakeClient) AddRoute(string, pahomqtt.MessageHandler) {}

func (f *fakeClient) OptionsReader() pahomqtt.ClientOptionsReader {
	return pahomqtt.ClientOptionsReader{}
}

// deliver invokes the subscription handler for topic as paho would.
func (f *fakeClient) deliver(t *testing.T, topic string, payload []byte) {
	t.Helper()
	f.mu.Lock()
	handler := f.handlers[topic]
	f.mu.Unlock()
	if handler == nil {
		t.Fatalf("no subscription for %q", topic)
	}
	handler(f, fakeMessage{topic: topic, payload: payload})
}

// loseConnection simulates a dropped link followed by a successful
// automatic reconnect.
func (f *fakeClient) loseConnection(err error) {
	f.mu.Lock()
	f.connected = false
	opts := f.opts
	f.mu.Unlock()

	opts.OnConnectionLost(f, err)
	opts.OnReconnecting(f, opts)

	f.mu.Lock()
	f.connected = true
	f.mu.Unlock()
	opts.OnConnect(f)
}

func (f *fakeClient) count(event string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.events {
		if e == event {
			n++
		}
	}
	return n
}

func (f *fakeClient) eventLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.events...)
}

func (f *fakeClient) publishedMessages() []publishedMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]publishedMessage(nil), f.published...)
}

func (f *fakeClient) disconnectCalls() []uint {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uint(nil), f.disconnects...)
}

func (f *fakeClient) connectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connectCalls
}

var testTopics = []string{
	"gateway/telegram/status",
	"gateway/telegram/inbound",
	"gateway/telegram/outbound",
}

func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "gateway-test",
		},
		ConnectTimeout: 2,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

// newTestManager returns a Manager wired to fake.
func newTestManager(t *testing.T, fake *fakeClient, cfg config.MQTTConfig) *Manager {
	t.Helper()

	m, err := New(Options{
		Config:        cfg,
		Subscriptions: testTopics,
		Presence: &Message{
			Topic:   testTopics[0],
			Payload: []byte(`{"device":"gateway-test","source":"Internal","message":"Online"}`),
		},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	m.newClient = func(opts *pahomqtt.ClientOptions) pahomqtt.Client {
		fake.mu.Lock()
		fake.opts = opts
		fake.mu.Unlock()
		return fake
	}
	return m
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
