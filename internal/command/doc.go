// Package command implements the mqtt-cli command surface.
//
// Execute dispatches the top-level commands (pub, sub, shell, version,
// help). Every command goes through an Executor, which owns the session
// Registry, the Shell Context and the DisconnectHandler, and is the only
// place new sessions are dialled and registered.
//
// Inside the shell, commands without an explicit identifier act on the
// active session. Failures are reported through the logger: with the full
// error chain at debug level when the command ran with --debug or
// --verbose, otherwise as a single error line.
package command
