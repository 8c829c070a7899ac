package command

import (
	"context"
	"errors"
	"io"

	"github.com/nerrad567/mqtt-cli/internal/archive"
	"github.com/nerrad567/mqtt-cli/internal/infrastructure/logging"
	"github.com/nerrad567/mqtt-cli/internal/infrastructure/mqtt"
	"github.com/nerrad567/mqtt-cli/internal/output"
	"github.com/nerrad567/mqtt-cli/internal/session"
)

// SinkOptions selects where received messages go.
type SinkOptions struct {
	// Console receives one line per message. Nil disables printing.
	Console    io.Writer
	ShowTopics bool

	// File, when set, gets one "topic: payload" line appended per message.
	File string

	Base64 bool

	// Archive, when set, records every message.
	Archive archive.Repository
}

// Sink delivers received messages to the console, a file and the archive.
type Sink struct {
	printer *output.Printer
	file    *output.FileAppender
	base64  bool
	archive archive.Repository
}

// NewSink prepares the destinations named by opts.
func NewSink(opts SinkOptions) (*Sink, error) {
	s := &Sink{
		base64:  opts.Base64,
		archive: opts.Archive,
	}
	if opts.Console != nil {
		s.printer = output.NewPrinter(opts.Console, opts.ShowTopics)
	}
	if opts.File != "" {
		f, err := output.NewFileAppender(opts.File)
		if err != nil {
			return nil, err
		}
		s.file = f
	}
	return s, nil
}

// handler returns the message callback for sess. Messages are logged at
// trace when the session is verbose, otherwise at debug.
func (s *Sink) handler(sess *session.Session, logger *logging.Logger) mqtt.MessageHandler {
	ctx := logging.WithIdentifier(context.Background(), "CLIENT "+sess.Identity.ClientID)

	return func(msg mqtt.Message) error {
		text := output.Encode(msg.Payload, s.base64)

		if sess.Verbose {
			logger.TraceContext(ctx, "received PUBLISH",
				"topic", msg.Topic,
				"qos", msg.QoS,
				"retained", msg.Retained,
				"duplicate", msg.Duplicate,
				"message_id", msg.MessageID,
				"payload", text,
			)
		} else {
			logger.DebugContext(ctx, "received PUBLISH", "topic", msg.Topic, "payload", text)
		}

		var errs []error
		if s.printer != nil {
			errs = append(errs, s.printer.Print(msg.Topic, text))
		}
		if s.file != nil {
			errs = append(errs, s.file.Append(msg.Topic, text))
		}
		if s.archive != nil {
			errs = append(errs, s.archive.Record(ctx, &archive.Message{
				ClientID: sess.Identity.ClientID,
				Host:     sess.Identity.Host,
				Topic:    msg.Topic,
				Payload:  msg.Payload,
				QoS:      msg.QoS,
				Retained: msg.Retained,
			}))
		}
		return errors.Join(errs...)
	}
}
