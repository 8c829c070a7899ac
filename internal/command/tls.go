package command

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"

	"github.com/nerrad567/mqtt-cli/internal/certs"
	"github.com/nerrad567/mqtt-cli/internal/tlsconf"
)

// buildTLS loads the files named by req and assembles the TLS
// configuration. It returns nil when the request does not ask for TLS.
// Every failure wraps tlsconf.ErrConfig.
func buildTLS(req TLSRequest) (*tls.Config, error) {
	in, err := loadTLSInput(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", tlsconf.ErrConfig, err)
	}
	if !tlsconf.Required(in, req.UseDefault) {
		return nil, nil
	}

	cfg, err := tlsconf.Build(in)
	if err != nil {
		return nil, err
	}
	return cfg.TLS(), nil
}

func loadTLSInput(req TLSRequest) (tlsconf.Input, error) {
	in := tlsconf.Input{
		CipherSuites: req.CipherSuites,
		Protocols:    req.Protocols,
	}

	var trusted []*x509.Certificate
	for _, path := range req.CAFiles {
		found, err := certs.LoadCertificates(path)
		if err != nil {
			return in, fmt.Errorf("cafile %s: %w", path, err)
		}
		trusted = append(trusted, found...)
	}
	for _, dir := range req.CAPaths {
		found, err := certs.LoadCertificateDir(dir)
		if err != nil {
			return in, fmt.Errorf("capath %s: %w", dir, err)
		}
		trusted = append(trusted, found...)
	}
	in.TrustedCertificates = trusted

	if req.CertFile != "" {
		cert, err := certs.LoadCertificate(req.CertFile)
		if err != nil {
			return in, fmt.Errorf("cert %s: %w", req.CertFile, err)
		}
		in.ClientCertificate = cert
	}
	if req.KeyFile != "" {
		key, err := certs.LoadPrivateKey(req.KeyFile)
		if err != nil {
			return in, fmt.Errorf("key %s: %w", req.KeyFile, err)
		}
		in.ClientKey = key
	}

	return in, nil
}
