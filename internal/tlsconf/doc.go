// Package tlsconf assembles TLS settings for broker connections.
//
// Build turns already parsed trust certificates, an optional client
// certificate and key, and cipher and protocol restrictions into one
// immutable Config. It performs no file or network I/O; loading material
// from disk is done by package certs.
//
// Required decides whether a connection needs TLS at all, so plain
// connections never pay for building a configuration.
package tlsconf
