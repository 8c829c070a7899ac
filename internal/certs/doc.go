// Package certs converts certificate and key files into parsed values.
//
// These are the conversion steps that feed the TLS configuration builder:
// a single file becomes one or more certificates, a directory becomes the
// union of its certificate files, and a key file becomes a private key.
// Nothing here builds a TLS configuration or touches the network.
package certs
