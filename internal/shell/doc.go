// Package shell implements the interactive side of mqtt-cli.
//
// Context is the single slot holding the session that shell commands act on
// when no client is named explicitly. DisconnectHandler reacts to every
// disconnect of a managed connection: it clears the Context when the
// active session goes away, tells the user when that happened unexpectedly,
// and removes the session from the Registry. REPL is the line loop that
// reads shell commands and answers the "Press ENTER to resume" prompt.
package shell
