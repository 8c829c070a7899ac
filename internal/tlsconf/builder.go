package tlsconf

import (
	"crypto"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"slices"
	"strings"
)

// DefaultProtocol is used when no protocol restriction is given.
const DefaultProtocol = "TLSv1.2"

// protocolVersions maps accepted protocol names to crypto/tls versions.
var protocolVersions = map[string]uint16{
	"TLSv1":   tls.VersionTLS10,
	"TLSv1.1": tls.VersionTLS11,
	"TLSv1.2": tls.VersionTLS12,
	"TLSv1.3": tls.VersionTLS13,
}

// Input is the parsed material a Config is built from.
type Input struct {
	TrustedCertificates []*x509.Certificate
	ClientCertificate   *x509.Certificate
	ClientKey           crypto.PrivateKey

	// CipherSuites holds IANA cipher suite names. Empty keeps the Go defaults.
	CipherSuites []string

	// Protocols holds names such as "TLSv1.2". Empty means DefaultProtocol.
	Protocols []string
}

// Required reports whether a connection built from in needs TLS: any trust
// certificate, cipher or protocol restriction, any part of a client
// identity, or an explicit request for default TLS.
func Required(in Input, useDefaultTLS bool) bool {
	return useDefaultTLS ||
		len(in.TrustedCertificates) > 0 ||
		len(in.CipherSuites) > 0 ||
		len(in.Protocols) > 0 ||
		in.ClientCertificate != nil ||
		in.ClientKey != nil
}

// Config is an immutable TLS configuration. Accessors return copies.
type Config struct {
	trusted    []*x509.Certificate
	roots      *x509.CertPool
	clientCert *tls.Certificate
	ciphers    []string
	cipherIDs  []uint16
	protocols  []string
	minVersion uint16
	maxVersion uint16
}

// Build validates in and assembles a Config. On error the returned Config
// is nil and the error matches ErrConfig.
func Build(in Input) (*Config, error) {
	if (in.ClientCertificate == nil) != (in.ClientKey == nil) {
		return nil, ErrPartialClientIdentity
	}

	c := &Config{
		trusted: slices.Clone(in.TrustedCertificates),
		ciphers: slices.Clone(in.CipherSuites),
	}

	if len(c.trusted) > 0 {
		c.roots = x509.NewCertPool()
		for _, cert := range c.trusted {
			c.roots.AddCert(cert)
		}
	}

	if in.ClientCertificate != nil {
		pair, err := keyPair(in.ClientCertificate, in.ClientKey)
		if err != nil {
			return nil, err
		}
		c.clientCert = pair
	}

	ids, err := cipherSuiteIDs(c.ciphers)
	if err != nil {
		return nil, err
	}
	c.cipherIDs = ids

	c.protocols = slices.Clone(in.Protocols)
	if len(c.protocols) == 0 {
		c.protocols = []string{DefaultProtocol}
	}
	c.minVersion, c.maxVersion, err = versionRange(c.protocols)
	if err != nil {
		return nil, err
	}
	if len(c.cipherIDs) > 0 && c.minVersion == tls.VersionTLS13 {
		return nil, ErrCiphersWithTLS13
	}

	return c, nil
}

// TrustedCertificates returns the trust material, empty when server
// verification uses the system roots.
func (c *Config) TrustedCertificates() []*x509.Certificate {
	return slices.Clone(c.trusted)
}

// HasClientIdentity reports whether a client certificate and key are set.
func (c *Config) HasClientIdentity() bool {
	return c.clientCert != nil
}

// CipherSuites returns the cipher allow-list, empty for library defaults.
func (c *Config) CipherSuites() []string {
	return slices.Clone(c.ciphers)
}

// Protocols returns the accepted protocol versions.
func (c *Config) Protocols() []string {
	return slices.Clone(c.protocols)
}

// TLS returns a new *tls.Config for one connection.
func (c *Config) TLS() *tls.Config {
	cfg := &tls.Config{
		MinVersion:   c.minVersion,
		MaxVersion:   c.maxVersion,
		CipherSuites: slices.Clone(c.cipherIDs),
	}
	if c.roots != nil {
		cfg.RootCAs = c.roots.Clone()
	}
	if c.clientCert != nil {
		cfg.Certificates = []tls.Certificate{*c.clientCert}
	}
	return cfg
}

func keyPair(cert *x509.Certificate, key crypto.PrivateKey) (*tls.Certificate, error) {
	signer, ok := key.(crypto.Signer)
	if !ok {
		return nil, fmt.Errorf("%w: key type %T cannot sign", ErrKeyMismatch, key)
	}
	pub, ok := signer.Public().(interface{ Equal(crypto.PublicKey) bool })
	if !ok || !pub.Equal(cert.PublicKey) {
		return nil, fmt.Errorf("%w: %s", ErrKeyMismatch, cert.Subject.CommonName)
	}

	return &tls.Certificate{
		Certificate: [][]byte{cert.Raw},
		PrivateKey:  key,
		Leaf:        cert,
	}, nil
}

func cipherSuiteIDs(names []string) ([]uint16, error) {
	if len(names) == 0 {
		return nil, nil
	}

	known := make(map[string]uint16)
	for _, s := range tls.CipherSuites() {
		known[s.Name] = s.ID
	}
	for _, s := range tls.InsecureCipherSuites() {
		known[s.Name] = s.ID
	}

	ids := make([]uint16, 0, len(names))
	for _, name := range names {
		id, ok := known[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownCipherSuite, name)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// versionRange returns the bounds of protocols. crypto/tls only accepts a
// range, so the versions must be consecutive.
func versionRange(protocols []string) (lo, hi uint16, err error) {
	seen := make(map[uint16]bool, len(protocols))
	for _, name := range protocols {
		v, ok := protocolVersions[name]
		if !ok {
			return 0, 0, fmt.Errorf("%w: %s", ErrUnknownProtocol, name)
		}
		seen[v] = true
		if lo == 0 || v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	for v := lo; v <= hi; v++ {
		if !seen[v] {
			return 0, 0, fmt.Errorf("%w: %s", ErrProtocolGap, strings.Join(protocols, ","))
		}
	}
	return lo, hi, nil
}

// ParseList splits a colon or comma separated list, dropping blanks.
func ParseList(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ':' || r == ','
	})

	out := fields[:0]
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
