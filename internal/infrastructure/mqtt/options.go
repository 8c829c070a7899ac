package mqtt

import (
	"crypto/tls"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// Connection constants.
const (
	// defaultConnectTimeout is the maximum time to wait for initial connection.
	defaultConnectTimeout = 10 * time.Second

	// defaultPublishTimeout is the maximum time to wait for publish acknowledgment.
	defaultPublishTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 250 // milliseconds

	// defaultKeepAlive is the keepalive interval for the connection.
	defaultKeepAlive = 60 * time.Second

	// maxQoS is the maximum QoS level supported.
	maxQoS = 2

	// paho protocol version numbers (MQTT 3.1 and 3.1.1).
	protocolV31  = 3
	protocolV311 = 4
)

// ConnectOptions describes a single client connection.
type ConnectOptions struct {
	Host     string
	Port     int
	ClientID string

	// Version is the requested protocol version: "3" or "3.1.1" for MQTT 3.1.1,
	// "3.1" for MQTT 3.1. Empty means 3.1.1.
	Version string

	Username string
	Password []byte

	// KeepAlive of zero uses the 60 second default.
	KeepAlive time.Duration

	// CleanSession defaults to true through NewConnectOptions.
	CleanSession bool

	Will *Will

	// TLS switches the broker URL to ssl:// when non-nil.
	TLS *tls.Config

	// ConnectTimeout of zero uses the 10 second default.
	ConnectTimeout time.Duration
}

// Will is a Last Will and Testament published by the broker if the
// client disconnects unexpectedly.
type Will struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

// NewConnectOptions returns options for host:port with a clean session.
func NewConnectOptions(host string, port int, clientID string) ConnectOptions {
	return ConnectOptions{
		Host:         host,
		Port:         port,
		ClientID:     clientID,
		CleanSession: true,
	}
}

// BrokerURL returns the paho broker URL for these options.
func (o ConnectOptions) BrokerURL() string {
	scheme := "tcp"
	if o.TLS != nil {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, o.Host, o.Port)
}

// ProtocolVersion maps a user supplied version string to paho's numbering.
func ProtocolVersion(version string) (uint, error) {
	switch version {
	case "", "3", "3.1.1":
		return protocolV311, nil
	case "3.1":
		return protocolV31, nil
	default:
		return 0, fmt.Errorf("%w: %q (supported: 3, 3.1, 3.1.1)", ErrUnsupportedVersion, version)
	}
}

// buildClientOptions creates paho MQTT options from ConnectOptions.
//
// This configures:
//   - Broker URL (tcp:// or ssl:// based on TLS setting)
//   - Client ID and protocol version
//   - Authentication credentials (if provided)
//   - Last Will and Testament (if provided)
//   - TLS configuration (if provided)
//
// Auto-reconnect is disabled: a lost connection ends the session and a
// reconnect is an explicit new connect.
func buildClientOptions(o ConnectOptions) (*pahomqtt.ClientOptions, error) {
	if o.ClientID == "" {
		return nil, ErrInvalidClientID
	}

	version, err := ProtocolVersion(o.Version)
	if err != nil {
		return nil, err
	}

	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(o.BrokerURL())
	opts.SetClientID(o.ClientID)
	opts.SetProtocolVersion(version)

	if o.Username != "" {
		opts.SetUsername(o.Username)
	}
	if o.Password != nil {
		opts.SetPassword(string(o.Password))
	}

	opts.SetCleanSession(o.CleanSession)

	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)

	timeout := o.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}
	opts.SetConnectTimeout(timeout)

	keepAlive := o.KeepAlive
	if keepAlive <= 0 {
		keepAlive = defaultKeepAlive
	}
	opts.SetKeepAlive(keepAlive)

	if o.Will != nil {
		if err := ValidateTopicName(o.Will.Topic); err != nil {
			return nil, fmt.Errorf("will: %w", err)
		}
		if o.Will.QoS > maxQoS {
			return nil, fmt.Errorf("will: %w", ErrInvalidQoS)
		}
		opts.SetBinaryWill(o.Will.Topic, o.Will.Payload, o.Will.QoS, o.Will.Retained)
	}

	if o.TLS != nil {
		opts.SetTLSConfig(o.TLS)
	}

	return opts, nil
}
