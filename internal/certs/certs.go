package certs

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// certExtensions lists the file extensions LoadCertificateDir reads.
var certExtensions = map[string]bool{
	".pem": true,
	".crt": true,
	".cer": true,
}

// LoadCertificates reads every certificate in a PEM file. A file without
// PEM blocks is parsed as DER.
func LoadCertificates(path string) ([]*x509.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("certs: read cert file %s: %w", path, err)
	}

	certs, err := ParseCertificates(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", err, path)
	}
	return certs, nil
}

// ParseCertificates parses PEM (or raw DER) certificate data.
func ParseCertificates(data []byte) ([]*x509.Certificate, error) {
	var (
		certs  []*x509.Certificate
		blocks int
	)

	for rest := data; len(rest) > 0; {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		blocks++

		if block.Type != "CERTIFICATE" {
			continue
		}

		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("certs: parse certificate: %w", err)
		}
		certs = append(certs, cert)
	}

	if blocks == 0 && len(data) > 0 {
		der, err := x509.ParseCertificates(data)
		if err != nil {
			return nil, fmt.Errorf("certs: parse certificate: %w", err)
		}
		certs = der
	}

	if len(certs) == 0 {
		return nil, ErrNoCertificates
	}
	return certs, nil
}

// LoadCertificateDir reads every .pem, .crt and .cer file in dir, in name
// order. Subdirectories are ignored. Any unreadable or malformed file fails
// the whole load.
func LoadCertificateDir(dir string) ([]*x509.Certificate, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("certs: read dir %s: %w", dir, err)
	}

	var certs []*x509.Certificate
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if !certExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			continue
		}

		found, err := LoadCertificates(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		certs = append(certs, found...)
	}

	if len(certs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoCertificates, dir)
	}
	return certs, nil
}

// LoadCertificate returns the first certificate in path, the leaf of a
// client certificate chain.
func LoadCertificate(path string) (*x509.Certificate, error) {
	certs, err := LoadCertificates(path)
	if err != nil {
		return nil, err
	}
	return certs[0], nil
}

// LoadPrivateKey reads a PKCS#8, PKCS#1 (RSA) or SEC1 (EC) private key.
func LoadPrivateKey(path string) (crypto.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("certs: read key file %s: %w", path, err)
	}

	key, err := ParsePrivateKey(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", err, path)
	}
	return key, nil
}

// ParsePrivateKey parses the first private key in PEM (or raw DER) data.
func ParsePrivateKey(data []byte) (crypto.PrivateKey, error) {
	var blocks int

	for rest := data; len(rest) > 0; {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		blocks++

		switch block.Type {
		case "PRIVATE KEY":
			key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
			if err != nil {
				return nil, fmt.Errorf("certs: parse PKCS#8 key: %w", err)
			}
			return checkKey(key)
		case "RSA PRIVATE KEY":
			key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
			if err != nil {
				return nil, fmt.Errorf("certs: parse PKCS#1 key: %w", err)
			}
			return key, nil
		case "EC PRIVATE KEY":
			key, err := x509.ParseECPrivateKey(block.Bytes)
			if err != nil {
				return nil, fmt.Errorf("certs: parse EC key: %w", err)
			}
			return key, nil
		case "ENCRYPTED PRIVATE KEY":
			return nil, fmt.Errorf("%w: encrypted keys are not supported", ErrUnsupportedKey)
		}
	}

	if blocks == 0 && len(data) > 0 {
		return parseDERKey(data)
	}
	return nil, ErrNoPrivateKey
}

func parseDERKey(der []byte) (crypto.PrivateKey, error) {
	if key, err := x509.ParsePKCS8PrivateKey(der); err == nil {
		return checkKey(key)
	}
	if key, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return key, nil
	}
	if key, err := x509.ParseECPrivateKey(der); err == nil {
		return key, nil
	}
	return nil, ErrNoPrivateKey
}

// checkKey rejects PKCS#8 key types a TLS client cannot sign with.
func checkKey(key any) (crypto.PrivateKey, error) {
	switch k := key.(type) {
	case *rsa.PrivateKey, *ecdsa.PrivateKey, ed25519.PrivateKey:
		return k, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedKey, key)
	}
}
