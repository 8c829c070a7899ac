// Package session tracks the MQTT connections managed by mqtt-cli.
//
// A connection is named by its Identity, the (client identifier, host)
// pair. The Registry maps identities to live Sessions and is shared by the
// command goroutine, which registers sessions on connect, and the protocol
// callback goroutines, which remove them when a connection ends.
//
// Registering an identity that is already present replaces the old entry.
// Removal is by identity and is idempotent.
package session
