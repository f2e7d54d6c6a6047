package telegram

import (
	"fmt"
	"strings"

	"github.com/nerrad567/telegram-gateway/internal/infrastructure/config"
)

// Route is the handling rule for a received broker message.
type Route int

const (
	// RouteUnknown messages are ignored.
	RouteUnknown Route = iota

	// RoutePresence messages arrive on the presence topic. Subscribe-only.
	RoutePresence

	// RouteInbound messages are the gateway's own chat-to-broker traffic
	// echoed back by the broker. Never re-processed.
	RouteInbound

	// RouteOutbound messages are forwarded to chat.
	RouteOutbound
)

// String returns the route name used in logs.
func (r Route) String() string {
	switch r {
	case RoutePresence:
		return "presence"
	case RouteInbound:
		return "inbound"
	case RouteOutbound:
		return "outbound"
	default:
		return "unknown"
	}
}

// Router maps broker topics to routes. It is immutable after construction
// and safe for concurrent use.
type Router struct {
	presence string
	inbound  string
	outbound string
}

// NewRouter builds a Router from the configured topic set.
// The three topics must be non-empty and distinct.
func NewRouter(topics config.TopicsConfig) (*Router, error) {
	if topics.Presence == "" || topics.Inbound == "" || topics.Outbound == "" {
		return nil, fmt.Errorf("%w: presence, inbound and outbound topics are required", ErrInvalidTopics)
	}
	if topics.Presence == topics.Inbound || topics.Presence == topics.Outbound || topics.Inbound == topics.Outbound {
		return nil, fmt.Errorf("%w: topics must be distinct", ErrInvalidTopics)
	}

	return &Router{
		presence: topics.Presence,
		inbound:  topics.Inbound,
		outbound: topics.Outbound,
	}, nil
}

// Classify returns the route for a received topic.
//
// Matching is by substring containment, not equality: a topic is Outbound
// if it contains the configured outbound topic string, and so on. When a
// topic contains more than one configured string, Outbound wins over
// Inbound, which wins over Presence.
func (r *Router) Classify(topic string) Route {
	switch {
	case strings.Contains(topic, r.outbound):
		return RouteOutbound
	case strings.Contains(topic, r.inbound):
		return RouteInbound
	case strings.Contains(topic, r.presence):
		return RoutePresence
	default:
		return RouteUnknown
	}
}

// OutboundTopicFor returns the topic chat-originated envelopes are
// published to. This is always the Inbound topic: broker-side consumers
// treat it as gateway input.
func (r *Router) OutboundTopicFor(Envelope) string {
	return r.inbound
}

// PresenceTopic returns the topic the startup announcement goes to.
func (r *Router) PresenceTopic() string {
	return r.presence
}

// Subscriptions returns the topics the broker connection must hold,
// presence first.
func (r *Router) Subscriptions() []string {
	return []string{r.presence, r.inbound, r.outbound}
}
