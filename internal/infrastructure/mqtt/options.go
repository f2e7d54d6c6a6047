package mqtt

import (
	"crypto/tls"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/telegram-gateway/internal/infrastructure/config"
)

// Connection constants.
const (
	// defaultConnectTimeout is used when the config leaves connect_timeout unset.
	defaultConnectTimeout = 10 * time.Second

	// defaultPublishTimeout bounds publish and subscribe acknowledgement waits.
	defaultPublishTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on a
	// graceful disconnect.
	defaultDisconnectQuiesce = 1000 // milliseconds

	// defaultKeepAlive is used when the config leaves keep_alive unset.
	defaultKeepAlive = 60 * time.Second

	// maxQoS is the maximum QoS level supported.
	maxQoS = 2

	// maxPayloadSize caps outgoing payloads (1MB).
	maxPayloadSize = 1 << 20

	// tlsMinVersion is the minimum TLS version for secure connections.
	tlsMinVersion = tls.VersionTLS12
)

// brokerURL returns the tcp:// or ssl:// URL for the configured broker.
func brokerURL(cfg config.MQTTConfig) string {
	scheme := "tcp"
	if cfg.Broker.TLS {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, cfg.Broker.Host, cfg.Broker.Port)
}

// buildClientOptions creates paho MQTT options from the gateway config.
//
// This configures:
//   - Broker URL (tcp:// or ssl:// based on TLS setting)
//   - Client ID and credentials
//   - Clean session, so subscriptions must be reissued on every connect
//   - Auto-reconnect with exponential backoff capped at reconnect.max_delay
//   - TLS configuration (if enabled)
//
// Connection event handlers are installed by the Manager.
func buildClientOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	opts.AddBroker(brokerURL(cfg))
	opts.SetClientID(cfg.Broker.ClientID)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}

	// Broker-side session state is not relied upon.
	opts.SetCleanSession(true)
	opts.SetResumeSubs(false)

	// Handlers may publish; let paho deliver concurrently.
	opts.SetOrderMatters(false)

	// The first connect is not retried by paho. A failed Start is reported to
	// the caller, and a link that drops later is recovered by auto-reconnect.
	opts.SetConnectRetry(false)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetryInterval(secondsOr(cfg.Reconnect.InitialDelay, time.Second))
	opts.SetMaxReconnectInterval(secondsOr(cfg.Reconnect.MaxDelay, time.Minute))

	opts.SetConnectTimeout(connectTimeout(cfg))
	opts.SetKeepAlive(secondsOr(cfg.KeepAlive, defaultKeepAlive))

	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{
			MinVersion: tlsMinVersion,
		})
	}

	return opts
}

func connectTimeout(cfg config.MQTTConfig) time.Duration {
	return secondsOr(cfg.ConnectTimeout, defaultConnectTimeout)
}

// secondsOr converts a seconds value from config, falling back to def when unset.
func secondsOr(seconds int, def time.Duration) time.Duration {
	if seconds <= 0 {
		return def
	}
	return time.Duration(seconds) * time.Second
}
