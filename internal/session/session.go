package session

import (
	"context"
	"strings"
	"time"

	"github.com/nerrad567/mqtt-cli/internal/infrastructure/mqtt"
)

// Identity names a managed connection: the client identifier on a host.
// Two identities are equal iff both fields match exactly, so Identity can
// be compared with == and used as a map key. Port and protocol version are
// not part of it.
type Identity struct {
	ClientID string
	Host     string
}

// String renders the identity as clientID@host.
func (id Identity) String() string {
	return id.ClientID + "@" + id.Host
}

// ParseIdentity splits "clientID@host". The host part is optional;
// hasHost reports whether it was present.
func ParseIdentity(s string) (id Identity, hasHost bool) {
	i := strings.LastIndex(s, "@")
	if i < 0 {
		return Identity{ClientID: s}, false
	}
	return Identity{ClientID: s[:i], Host: s[i+1:]}, true
}

// Conn is the protocol client behind a session. *mqtt.Client satisfies it.
type Conn interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	Subscriptions() []mqtt.Subscription
	SubscriptionCount() int
	HealthCheck(ctx context.Context) error
	Disconnect() error
}

// Session is one live (or just ended) client connection.
//
// A Session is created on successful connect and is never reused: a
// reconnect produces a new Session even when the identity is the same.
type Session struct {
	Identity Identity
	Port     int
	Version  string
	Conn     Conn

	// Debug and Verbose are inherited from the command that opened the
	// session and decide how its disconnect cause is logged.
	Debug   bool
	Verbose bool

	ConnectedAt time.Time
}

// Event describes one disconnect of a managed connection.
type Event struct {
	Identity Identity
	Source   mqtt.DisconnectSource
	Cause    error

	Debug   bool
	Verbose bool
}

// DisconnectEvent builds the Event for s.
func (s *Session) DisconnectEvent(source mqtt.DisconnectSource, cause error) Event {
	return Event{
		Identity: s.Identity,
		Source:   source,
		Cause:    cause,
		Debug:    s.Debug,
		Verbose:  s.Verbose,
	}
}
