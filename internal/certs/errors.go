package certs

import "errors"

var (
	// ErrNoCertificates is returned when a file or directory holds no certificates.
	ErrNoCertificates = errors.New("certs: no certificates found")

	// ErrNoPrivateKey is returned when a key file holds no private key.
	ErrNoPrivateKey = errors.New("certs: no private key found")

	// ErrUnsupportedKey is returned for encrypted keys and key types that cannot sign.
	ErrUnsupportedKey = errors.New("certs: unsupported private key")
)
