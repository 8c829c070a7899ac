package command

import "errors"

// Domain errors for the command layer.
var (
	// ErrClientNotFound is returned when no session matches the identifier.
	ErrClientNotFound = errors.New("client not found")

	// ErrAmbiguousClient is returned when a bare client identifier matches
	// sessions on more than one host.
	ErrAmbiguousClient = errors.New("client identifier matches more than one host")

	// ErrNoActiveSession is returned by shell commands that need an active
	// session when none is set and no identifier was given.
	ErrNoActiveSession = errors.New("no active session")

	// ErrUnknownCommand is returned for an unrecognised command name.
	ErrUnknownCommand = errors.New("unknown command")

	// ErrMissingTopic is returned when a command needs at least one topic.
	ErrMissingTopic = errors.New("at least one topic is required")

	// ErrMissingMessage is returned when publish is called without a message.
	ErrMissingMessage = errors.New("message is required")

	// ErrArchiveDisabled is returned when archiving is requested but no
	// archive path is configured.
	ErrArchiveDisabled = errors.New("archive is not configured")

	// ErrPasswordPrompt is returned when a password prompt is needed but
	// stdin is not a terminal.
	ErrPasswordPrompt = errors.New("password prompt requires a terminal")
)
