package tlsconf

import (
	"errors"
	"fmt"
)

// ErrConfig is the umbrella error for malformed or incomplete TLS input.
// Every error returned by Build matches it with errors.Is.
var ErrConfig = errors.New("tls configuration invalid")

var (
	// ErrPartialClientIdentity is returned when only one of the client
	// certificate and client key is given.
	ErrPartialClientIdentity = fmt.Errorf("%w: client certificate and key must be given together", ErrConfig)

	// ErrKeyMismatch is returned when the client key does not belong to the
	// client certificate.
	ErrKeyMismatch = fmt.Errorf("%w: client key does not match certificate", ErrConfig)

	// ErrUnknownCipherSuite is returned for a cipher suite name Go does not know.
	ErrUnknownCipherSuite = fmt.Errorf("%w: unknown cipher suite", ErrConfig)

	// ErrUnknownProtocol is returned for an unsupported protocol version name.
	ErrUnknownProtocol = fmt.Errorf("%w: unknown protocol version", ErrConfig)

	// ErrProtocolGap is returned when the protocol list skips a version
	// between its lowest and highest entry.
	ErrProtocolGap = fmt.Errorf("%w: protocol versions must be consecutive", ErrConfig)

	// ErrCiphersWithTLS13 is returned for a cipher allow-list when TLS 1.3
	// is the only enabled version. TLS 1.3 suites are not configurable.
	ErrCiphersWithTLS13 = fmt.Errorf("%w: cipher suites cannot be restricted for TLS 1.3", ErrConfig)
)
