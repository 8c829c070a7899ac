package command

import (
	"github.com/nerrad567/mqtt-cli/internal/infrastructure/logging"
	"github.com/nerrad567/mqtt-cli/internal/infrastructure/mqtt"
	"github.com/nerrad567/mqtt-cli/internal/session"
)

// Client is a connected protocol client as seen by the Executor.
// *mqtt.Client satisfies it.
type Client interface {
	session.Conn
	SetOnDisconnect(callback mqtt.DisconnectFunc)
}

// Dialer opens protocol connections.
type Dialer interface {
	Dial(opts mqtt.ConnectOptions) (Client, error)
}

// DialFunc adapts a function to the Dialer interface.
type DialFunc func(opts mqtt.ConnectOptions) (Client, error)

// Dial calls f(opts).
func (f DialFunc) Dial(opts mqtt.ConnectOptions) (Client, error) {
	return f(opts)
}

// MQTTDialer returns a Dialer backed by the paho adapter. Handler panics
// and unsubscribe failures inside the adapter are logged through logger.
func MQTTDialer(logger *logging.Logger) Dialer {
	return DialFunc(func(opts mqtt.ConnectOptions) (Client, error) {
		c, err := mqtt.Connect(opts)
		if err != nil {
			return nil, err
		}
		c.SetLogger(logger)
		return c, nil
	})
}
