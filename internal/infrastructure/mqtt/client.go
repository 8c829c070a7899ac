package mqtt

import (
	"context"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// DisconnectSource classifies why a connection ended.
type DisconnectSource int

const (
	// SourceOther covers network failures, broker-initiated closes and protocol errors.
	SourceOther DisconnectSource = iota

	// SourceUser marks a disconnect requested through Disconnect.
	SourceUser
)

// String returns the human readable source name.
func (s DisconnectSource) String() string {
	if s == SourceUser {
		return "user"
	}
	return "other"
}

// DisconnectFunc receives the single disconnect notification of a Client.
// cause is nil for SourceUser.
type DisconnectFunc func(source DisconnectSource, cause error)

// Client wraps paho.mqtt.golang for one managed CLI connection.
//
// It provides connection management, message publishing and subscription
// handling. Unlike a long-running service client it never reconnects:
// every Client delivers exactly one disconnect notification in its lifetime.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Client struct {
	client pahomqtt.Client

	// subscriptions tracks active subscriptions for listing.
	subscriptions map[string]subscription
	subMu         sync.RWMutex

	// connected tracks current connection state.
	connected bool
	connMu    sync.RWMutex

	// Disconnect notification. ended is set once; pending holds a
	// notification raised before SetOnDisconnect was called.
	onDisconnect DisconnectFunc
	ended        bool
	pending      *disconnectNotice
	callbackMu   sync.Mutex

	// logger for error/panic logging (optional, set via SetLogger).
	logger   Logger
	loggerMu sync.RWMutex
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

type disconnectNotice struct {
	source DisconnectSource
	cause  error
}

// subscription holds subscription details.
type subscription struct {
	topic   string
	qos     byte
	handler MessageHandler
}

// Subscription describes an active subscription.
type Subscription struct {
	Topic string
	QoS   byte
}

// Message is a received PUBLISH.
type Message struct {
	Topic     string
	Payload   []byte
	QoS       byte
	Retained  bool
	Duplicate bool
	MessageID uint16
}

// MessageHandler is the callback signature for received messages.
//
// Handlers are invoked on paho's delivery goroutine.
// They should not block for extended periods.
//
// Returns:
//   - error: Logged but does not affect message acknowledgment
type MessageHandler func(msg Message) error

// Connect establishes a connection to the MQTT broker.
//
// It performs the following setup:
//  1. Builds connection options (broker URL, auth, will, TLS)
//  2. Attempts the connection within the connect timeout
//
// Returns:
//   - *Client: Connected client ready for use
//   - error: wrapping ErrConnectionFailed if the broker cannot be reached
//     or refuses the connection
func Connect(o ConnectOptions) (*Client, error) {
	opts, err := buildClientOptions(o)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	c := &Client{
		subscriptions: make(map[string]subscription),
	}

	// paho runs this on its own goroutine
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.handleConnectionLost(err)
	})

	c.client = pahomqtt.NewClient(opts)
	if err := c.open(opts.ConnectTimeout); err != nil {
		return nil, err
	}
	return c, nil
}

// open runs the paho connect handshake. On timeout the paho client is
// stopped so a late CONNACK cannot leave an unowned connection behind.
func (c *Client) open(timeout time.Duration) error {
	token := c.client.Connect()
	if !token.WaitTimeout(timeout) {
		c.client.Disconnect(0)
		return fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	c.connMu.Lock()
	c.connected = true
	c.connMu.Unlock()

	return nil
}

// handleConnectionLost is called by paho when the connection drops.
func (c *Client) handleConnectionLost(err error) {
	c.connMu.Lock()
	c.connected = false
	c.connMu.Unlock()

	if err == nil {
		err = ErrNotConnected
	}
	c.notifyDisconnect(SourceOther, err)
}

// notifyDisconnect delivers the first notification and drops later ones.
func (c *Client) notifyDisconnect(source DisconnectSource, cause error) {
	c.callbackMu.Lock()
	if c.ended {
		c.callbackMu.Unlock()
		return
	}
	c.ended = true
	callback := c.onDisconnect
	if callback == nil {
		c.pending = &disconnectNotice{source: source, cause: cause}
	}
	c.callbackMu.Unlock()

	if callback != nil {
		callback(source, cause)
	}
}

// Disconnect gracefully disconnects from the MQTT broker.
//
// The disconnect notification fires with SourceUser on the calling
// goroutine before Disconnect returns, unless the connection was already
// lost, in which case that earlier notification stands.
func (c *Client) Disconnect() error {
	if c.client == nil {
		return nil
	}

	if c.client.IsConnected() {
		c.client.Disconnect(defaultDisconnectQuiesce)
	}

	c.connMu.Lock()
	c.connected = false
	c.connMu.Unlock()

	c.notifyDisconnect(SourceUser, nil)
	return nil
}

// HealthCheck verifies the MQTT connection is alive.
func (c *Client) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	return nil
}

// IsConnected returns the current connection state.
func (c *Client) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected && c.client != nil && c.client.IsConnected()
}

// SetOnDisconnect sets the callback for the client's disconnect
// notification. If the connection already ended, callback runs
// immediately on the calling goroutine.
func (c *Client) SetOnDisconnect(callback DisconnectFunc) {
	c.callbackMu.Lock()
	c.onDisconnect = callback
	pending := c.pending
	if callback != nil {
		c.pending = nil
	}
	c.callbackMu.Unlock()

	if pending != nil && callback != nil {
		callback(pending.source, pending.cause)
	}
}

// SetLogger sets a logger for error and panic logging.
// If not set, errors in handlers are silently ignored.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

// getLogger returns the current logger (may be nil).
func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

// wrapHandler wraps a MessageHandler with panic recovery and optional logging.
func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				if logger := c.getLogger(); logger != nil {
					logger.Error("MQTT handler panic recovered",
						"topic", msg.Topic(),
						"panic", r,
					)
				}
			}
		}()

		m := Message{
			Topic:     msg.Topic(),
			Payload:   msg.Payload(),
			QoS:       msg.Qos(),
			Retained:  msg.Retained(),
			Duplicate: msg.Duplicate(),
			MessageID: msg.MessageID(),
		}
		if err := handler(m); err != nil {
			if logger := c.getLogger(); logger != nil {
				logger.Warn("MQTT handler returned error",
					"topic", m.Topic,
					"error", err,
				)
			}
		}
	}
}
