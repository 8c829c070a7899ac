package shell

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nerrad567/mqtt-cli/internal/infrastructure/logging"
	"github.com/nerrad567/mqtt-cli/internal/infrastructure/mqtt"
	"github.com/nerrad567/mqtt-cli/internal/session"
)

// errConnectionLost stands in for a missing disconnect cause.
var errConnectionLost = errors.New("connection lost")

// Acknowledger asks the user to confirm an unexpected disconnect of the
// active session.
type Acknowledger interface {
	// Request shows the prompt and returns a function that blocks until the
	// user answers, the shell stops, or ctx is done.
	Request(ctx context.Context) (wait func())
}

// noAck is used when no interactive shell is attached.
type noAck struct{}

func (noAck) Request(context.Context) func() { return func() {} }

// DisconnectHandler processes disconnect events of managed connections.
//
// Handle runs on whatever goroutine delivered the event: the protocol
// client's goroutine for unexpected disconnects, the command goroutine for
// user-initiated ones. Concurrent calls for different identities are safe.
type DisconnectHandler struct {
	registry *session.Registry
	context  *Context
	ack      Acknowledger
	logger   *logging.Logger
}

// NewDisconnectHandler creates a handler. A nil ack disables the prompt.
func NewDisconnectHandler(registry *session.Registry, sc *Context, ack Acknowledger, logger *logging.Logger) *DisconnectHandler {
	if ack == nil {
		ack = noAck{}
	}
	return &DisconnectHandler{
		registry: registry,
		context:  sc,
		ack:      ack,
		logger:   logger,
	}
}

// Handle processes one disconnect event. It never fails: on return the
// identity is gone from the Registry and the Context no longer refers to
// it.
//
// Log records written while handling carry identifier "CLIENT <id>". The
// tag lives on a context derived from ctx, so the caller's own identifier
// is unaffected.
func (h *DisconnectHandler) Handle(ctx context.Context, ev session.Event) {
	ctx = logging.WithIdentifier(ctx, "CLIENT "+ev.Identity.ClientID)

	wait := func() {}
	if ev.Source == mqtt.SourceUser {
		if h.context.ClearIfMatches(ev.Identity) {
			h.logger.DebugContext(ctx, "active session closed", "client", ev.Identity.String())
		}
	} else {
		cause := ev.Cause
		if cause == nil {
			cause = errConnectionLost
		}
		h.logCause(ctx, ev, cause)

		if h.context.ClearIfMatches(ev.Identity) {
			h.logger.ErrorContext(ctx, RootCause(cause).Error())
			wait = h.ack.Request(ctx)
		}
	}

	h.registry.Remove(ev.Identity)
	wait()
}

// logCause records the disconnect cause at the detail the session asked
// for: the whole chain at trace when verbose, the message at debug when
// debug, nothing otherwise.
func (h *DisconnectHandler) logCause(ctx context.Context, ev session.Event, cause error) {
	switch {
	case ev.Verbose:
		h.logger.WithLevel(logging.LevelTrace).TraceContext(ctx, "connection lost",
			"client", ev.Identity.String(),
			"error", cause.Error(),
			"chain", ErrorChain(cause),
		)
	case ev.Debug:
		h.logger.WithLevel(slog.LevelDebug).DebugContext(ctx, cause.Error())
	}
}

// ErrorChain lists the type and message of every error in the wrap chain
// of err, outermost first.
func ErrorChain(err error) []string {
	var chain []string
	for err != nil {
		chain = append(chain, fmt.Sprintf("%T: %s", err, err.Error()))
		if u, ok := err.(interface{ Unwrap() []error }); ok {
			if errs := u.Unwrap(); len(errs) > 0 {
				err = errs[0]
				continue
			}
			break
		}
		err = errors.Unwrap(err)
	}
	return chain
}
